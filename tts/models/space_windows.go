//go:build windows

package models

import "github.com/dgnsrekt/voxkit/tts"

func availableSpace(string) (int64, error) {
	return 0, tts.NewError(tts.KindNotSupported, "free space is unknown on this platform", nil)
}

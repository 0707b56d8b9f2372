package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/dgnsrekt/voxkit/internal/markup"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/spf13/cobra"
)

// splitLength bounds each utterance queued by --sentences. Whole
// sentences are packed up to this many bytes.
const splitLength = 300

// speakFlags holds the speak command options.
type speakFlags struct {
	priority  string
	rate      float64
	pitch     float64
	volume    float64
	voice     string
	neural    string
	style     string
	tag       string
	clipboard bool
	markup    string
	sentences bool
}

var (
	speakOpts speakFlags

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT...]",
		Short: "Speak text",
		Long: paragraph(fmt.Sprintf("\n%s the given text, the clipboard, a markdown file or standard input, "+
			"and wait until it has been spoken.", keyword("Speak"))),
		Example: paragraph("voxkit speak hello world\n" +
			"voxkit speak --neural supertonic-en --style F2 \"Good morning\"\n" +
			"voxkit speak --markup README.md --sentences\n" +
			"echo hi | voxkit speak"),
		RunE: runSpeak,
	}
)

func init() {
	f := speakCmd.Flags()
	f.StringVarP(&speakOpts.priority, "priority", "P", "normal", "priority: low, normal, high or urgent")
	f.Float64VarP(&speakOpts.rate, "rate", "r", tts.DefaultRate, "speech rate (0.5 to 2.0)")
	f.Float64Var(&speakOpts.pitch, "pitch", tts.DefaultPitch, "pitch (0.5 to 2.0)")
	f.Float64Var(&speakOpts.volume, "volume", tts.DefaultVolume, "volume (0.0 to 1.0)")
	f.StringVarP(&speakOpts.voice, "voice", "v", "", "voice id, see \"voxkit voices\"")
	f.StringVarP(&speakOpts.neural, "neural", "n", "", "speak with this neural model")
	f.StringVar(&speakOpts.style, "style", "", "neural voice style")
	f.StringVar(&speakOpts.tag, "tag", "", "tag reported with every event")
	f.BoolVarP(&speakOpts.clipboard, "clipboard", "c", false, "speak the clipboard contents")
	f.StringVarP(&speakOpts.markup, "markup", "m", "", "speak a markdown file")
	f.BoolVarP(&speakOpts.sentences, "sentences", "s", false, "queue long text as several sentence-aligned utterances")
}

// speakInput collects the text to speak from arguments, the clipboard, a
// markdown file or stdin. isMarkup reports whether the text is markdown.
func speakInput(args []string, stdin io.Reader) (text string, isMarkup bool, err error) {
	switch {
	case speakOpts.markup != "":
		b, err := os.ReadFile(expandPath(speakOpts.markup))
		if err != nil {
			return "", false, fmt.Errorf("unable to read markup: %w", err)
		}
		return string(b), true, nil
	case speakOpts.clipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", false, fmt.Errorf("unable to read clipboard: %w", err)
		}
		return s, false, nil
	case len(args) > 0:
		return strings.Join(args, " "), false, nil
	case stdin != nil:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", false, fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), false, nil
	}
	return "", false, errors.New("nothing to speak")
}

// buildRequests turns the input into one request, or several split at
// sentence boundaries.
func buildRequests(cmd *cobra.Command, text string, isMarkup bool) ([]tts.Request, error) {
	p, err := tts.ParsePriority(speakOpts.priority)
	if err != nil {
		return nil, err
	}
	opts := []tts.RequestOption{tts.WithPriority(p), tts.WithTag(speakOpts.tag)}
	flags := cmd.Flags()
	if flags.Changed("rate") {
		opts = append(opts, tts.WithRate(speakOpts.rate))
	}
	if flags.Changed("pitch") {
		opts = append(opts, tts.WithPitch(speakOpts.pitch))
	}
	if flags.Changed("volume") {
		opts = append(opts, tts.WithVolume(speakOpts.volume))
	}

	if !speakOpts.sentences {
		if isMarkup {
			req, err := tts.NewRequest(markup.NewConverter().ToSpeech(text), append(opts, tts.WithMarkup(text))...)
			if err != nil {
				return nil, err
			}
			return []tts.Request{req}, nil
		}
		req, err := tts.NewRequest(text, opts...)
		if err != nil {
			return nil, err
		}
		return []tts.Request{req}, nil
	}

	if isMarkup {
		text = markup.NewConverter().ToSpeech(text)
	}
	var reqs []tts.Request
	for _, s := range markup.SplitSentences(text, splitLength) {
		req, err := tts.NewRequest(s, opts...)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, tts.NewError(tts.KindInvalidText, "no sentences to speak", nil)
	}
	return reqs, nil
}

// waiter tracks utterances until each has reached a terminal event.
type waiter struct {
	mu      sync.Mutex
	pending map[string]bool
	early   map[string]tts.Event
	failed  int
	out     io.Writer
	done    chan struct{}
}

func newWaiter(out io.Writer) *waiter {
	return &waiter{
		pending: make(map[string]bool),
		early:   make(map[string]tts.Event),
		out:     out,
		done:    make(chan struct{}),
	}
}

// handle is the coordinator event handler.
func (w *waiter) handle(ev tts.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	printEvent(w.out, ev)
	if !ev.Type.Terminal() {
		return
	}
	if ev.Type == tts.EventError {
		w.failed++
	}
	if !w.pending[ev.UtteranceID] {
		// Finished before track was called for it.
		if w.early != nil {
			w.early[ev.UtteranceID] = ev
		}
		return
	}
	delete(w.pending, ev.UtteranceID)
	w.checkDone()
}

// track registers an utterance id returned by Speak.
func (w *waiter) track(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.early[id]; ok {
		delete(w.early, id)
		return
	}
	w.pending[id] = true
}

// seal marks the end of tracking. done closes once nothing is pending.
func (w *waiter) seal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.early = nil
	w.checkDone()
}

func (w *waiter) checkDone() {
	if w.early != nil || len(w.pending) > 0 {
		return
	}
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func (w *waiter) failures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

func printEvent(w io.Writer, ev tts.Event) {
	id := ev.UtteranceID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%s %-9s", faintStyle.Render(id), ev.Type)
	switch ev.Type {
	case tts.EventProgress:
		line += fmt.Sprintf(" %3.0f%%", ev.Progress*100)
	case tts.EventDone:
		line = okStyle.Render(line)
	case tts.EventError:
		if ev.Err != nil {
			line += " " + ev.Err.Error()
		}
		line = errorStyle.Render(line)
	}
	if ev.Tag != "" {
		line += " " + faintStyle.Render("["+ev.Tag+"]")
	}
	_, _ = fmt.Fprintln(w, line)
}

func runSpeak(cmd *cobra.Command, args []string) error {
	var stdin io.Reader
	if len(args) == 0 {
		if yes, err := stdinIsPipe(); err == nil && yes {
			stdin = os.Stdin
		}
	}
	text, isMarkup, err := speakInput(args, stdin)
	if err != nil {
		return err
	}
	reqs, err := buildRequests(cmd, text, isMarkup)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w := newWaiter(cmd.OutOrStdout())
	useNeural := speakOpts.neural != "" || speakOpts.style != ""
	s, err := newSDK(ctx, useNeural, w.handle)
	if err != nil {
		return err
	}
	defer s.close()

	if useNeural {
		if err := s.useNeural(ctx, speakOpts.neural, speakOpts.style); err != nil {
			return err
		}
	}
	if speakOpts.voice != "" {
		v, ok := tts.FindVoice(s.coord.Voices(), speakOpts.voice)
		if !ok {
			return tts.NewError(tts.KindVoiceNotFound, "unknown voice", nil).WithContext("voice", speakOpts.voice)
		}
		if err := s.coord.SetVoice(v); err != nil {
			return err
		}
	}

	for _, req := range reqs {
		id, err := s.coord.Speak(req)
		if err != nil {
			return err
		}
		w.track(id)
	}
	w.seal()

	select {
	case <-w.done:
	case <-ctx.Done():
		_ = s.coord.StopAll()
		<-w.done
		return context.Cause(ctx)
	}

	if n := w.failures(); n > 0 {
		return fmt.Errorf("%d utterance(s) failed", n)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

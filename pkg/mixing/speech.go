package mixing

import (
	"context"
	"strings"
	"unicode"

	"github.com/teslashibe/go-distillo/pkg/agent"
)

// say publishes text to the synthesis output. It unmutes the speaker and
// marks the interrupt words it contains as spent, so the robot hearing
// itself does not trigger a barge-in.
func (d *Dispatcher) say(text string) {
	d.speak(context.Background(), text)
}

// speak is say for a generation: it is silent once ctx is done. The check
// and the unmute happen under speechMu, which bargeIn holds while it
// cancels and mutes.
func (d *Dispatcher) speak(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	d.speechMu.Lock()
	if ctx.Err() != nil {
		d.speechMu.Unlock()
		return
	}
	for _, w := range words(text) {
		if d.interrupt[w] {
			d.spent[w] = true
		}
	}
	if d.speaker != nil {
		d.speaker.SetMuted(false)
	}
	d.speechMu.Unlock()

	d.Publish(text)
	d.emit(Event{Type: EventUtterance, Text: text})
}

// speakFunc returns a partial-text callback that goes quiet once ctx is done.
func (d *Dispatcher) speakFunc(ctx context.Context) agent.PartialFunc {
	return func(text string) {
		d.speak(ctx, text)
	}
}

// unspentInterrupts returns the interrupt words in text not yet spent.
func (d *Dispatcher) unspentInterrupts(text string) []string {
	d.speechMu.Lock()
	defer d.speechMu.Unlock()

	var hits []string
	for _, w := range words(text) {
		if d.interrupt[w] && !d.spent[w] {
			hits = append(hits, w)
		}
	}
	return hits
}

func (d *Dispatcher) clearSpent() {
	d.speechMu.Lock()
	clear(d.spent)
	d.speechMu.Unlock()
}

// bargeIn stops the current answer. The words that triggered it are spent.
func (d *Dispatcher) bargeIn(hits []string) {
	d.speechMu.Lock()
	for _, w := range hits {
		d.spent[w] = true
	}
	n := d.cancelGenerations()
	if d.speaker != nil {
		d.speaker.SetMuted(true)
	}
	d.speechMu.Unlock()

	d.logger.Info("barge-in", "words", hits, "cancelled", n)
	d.emit(Event{Type: EventBargeIn, Text: strings.Join(hits, " ")})
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func trimSentence(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

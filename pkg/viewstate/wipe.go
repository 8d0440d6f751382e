package viewstate

import (
	"errors"
	"strings"
)

// WipeStep is the position in the delete-everything dialog.
type WipeStep int

const (
	WipeClosed WipeStep = iota
	WipeWarning
	WipeTypeConfirm
	WipeEnterKey
	WipeSubmitting
	WipeDone
	WipeFailed
)

func (s WipeStep) String() string {
	switch s {
	case WipeClosed:
		return "closed"
	case WipeWarning:
		return "warning"
	case WipeTypeConfirm:
		return "type-confirm"
	case WipeEnterKey:
		return "enter-key"
	case WipeSubmitting:
		return "submitting"
	case WipeDone:
		return "done"
	case WipeFailed:
		return "failed"
	}
	return "unknown"
}

// WipeConfirmPhrase must be typed exactly before the key can be entered.
const WipeConfirmPhrase = "DELETE ALL PARTS"

var ErrWipeStep = errors.New("wipe dialog: action not allowed in this step")

// WipeDialog walks the user through warning, typed confirmation and the
// wipe key before anything is sent. The zero value is closed.
type WipeDialog struct {
	step    WipeStep
	typed   string
	key     string
	lastErr error
}

func (d *WipeDialog) Step() WipeStep { return d.step }

// Err is the failure reported by Resolve, if any.
func (d *WipeDialog) Err() error { return d.lastErr }

func (d *WipeDialog) Open() {
	*d = WipeDialog{step: WipeWarning}
}

// Cancel closes the dialog from any step except while submitting.
func (d *WipeDialog) Cancel() error {
	if d.step == WipeSubmitting {
		return ErrWipeStep
	}
	*d = WipeDialog{}
	return nil
}

// Acknowledge accepts the warning.
func (d *WipeDialog) Acknowledge() error {
	if d.step != WipeWarning {
		return ErrWipeStep
	}
	d.step = WipeTypeConfirm
	return nil
}

// Type records the confirmation text and reports whether it matches.
func (d *WipeDialog) Type(text string) bool {
	if d.step != WipeTypeConfirm {
		return false
	}
	d.typed = text
	return d.confirmed()
}

func (d *WipeDialog) confirmed() bool {
	return strings.TrimSpace(d.typed) == WipeConfirmPhrase
}

// Continue moves past the typed confirmation once it matches.
func (d *WipeDialog) Continue() error {
	if d.step != WipeTypeConfirm || !d.confirmed() {
		return ErrWipeStep
	}
	d.step = WipeEnterKey
	return nil
}

func (d *WipeDialog) SetKey(key string) {
	if d.step == WipeEnterKey || d.step == WipeFailed {
		d.key = key
	}
}

// Submit returns the key to send and locks the dialog until Resolve.
// A failed attempt may be resubmitted with a corrected key.
func (d *WipeDialog) Submit() (string, error) {
	if d.step != WipeEnterKey && d.step != WipeFailed {
		return "", ErrWipeStep
	}
	if strings.TrimSpace(d.key) == "" {
		return "", ErrWipeStep
	}
	d.step = WipeSubmitting
	d.lastErr = nil
	return d.key, nil
}

// Resolve records the server's answer to Submit.
func (d *WipeDialog) Resolve(err error) {
	if d.step != WipeSubmitting {
		return
	}
	d.key = ""
	if err != nil {
		d.step = WipeFailed
		d.lastErr = err
		return
	}
	d.step = WipeDone
}

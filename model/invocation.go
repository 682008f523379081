package model

import "fmt"

// FlagName is the closed set of sendmail options trapmail recognises. Anything else is
// captured as FlagUnsupported together with its literal token.
type FlagName string

const (
	FlagDebug            FlagName = "debug"             // --debug
	FlagIgnoreDots       FlagName = "ignore_dots"       // -i, -oi
	FlagInlineRecipients FlagName = "inline_recipients" // -t
	FlagSender           FlagName = "sender"            // -f addr, -r addr
	FlagFullName         FlagName = "full_name"         // -F name
	FlagVerbose          FlagName = "verbose"           // -v
	FlagDeliveryMode     FlagName = "delivery_mode"     // -od<mode>
	FlagMode             FlagName = "mode"              // -b<mode>
	FlagOption           FlagName = "option"            // -o<option>
	FlagEndOfOptions     FlagName = "end_of_options"    // --
	FlagUnsupported      FlagName = "unsupported"
)

// Flag is a single parsed command-line option.
type Flag struct {
	Name    FlagName `json:"name"`
	Value   string   `json:"value,omitempty"`
	Literal string   `json:"literal"`
}

// Recognized reports whether the flag belongs to the supported set.
func (f Flag) Recognized() bool {
	return f.Name != FlagUnsupported
}

func (f Flag) String() string {
	if f.Value != "" {
		return fmt.Sprintf("%s=%q (%s)", f.Name, f.Value, f.Literal)
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.Literal)
}

// Invocation is the normalised command-line context of a capture.
type Invocation struct {
	Args      []string          `json:"args"`
	Flags     []Flag            `json:"flags"`
	WorkDir   string            `json:"workdir"`
	StorePath string            `json:"store_path"`
	Env       map[string]string `json:"env"`
}

// Has reports whether a flag with the given name was passed.
func (inv Invocation) Has(name FlagName) bool {
	for _, f := range inv.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Value returns the value of the last flag with the given name.
func (inv Invocation) Value(name FlagName) (string, bool) {
	for i := len(inv.Flags) - 1; i >= 0; i-- {
		if inv.Flags[i].Name == name {
			return inv.Flags[i].Value, true
		}
	}
	return "", false
}

// Recognized returns the supported flags in command-line order.
func (inv Invocation) Recognized() []Flag {
	out := make([]Flag, 0, len(inv.Flags))
	for _, f := range inv.Flags {
		if f.Recognized() {
			out = append(out, f)
		}
	}
	return out
}

// Ignored returns the unsupported flags in command-line order.
func (inv Invocation) Ignored() []Flag {
	out := make([]Flag, 0, len(inv.Flags))
	for _, f := range inv.Flags {
		if !f.Recognized() {
			out = append(out, f)
		}
	}
	return out
}

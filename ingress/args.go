// Package ingress turns a sendmail-style invocation into a stored record.
//
// trapmail accepts any command line a sendmail binary would. Options are recorded, never
// acted upon: a small set is recognised by name, everything else is kept verbatim as an
// unsupported flag so tests can still see what the application passed.
package ingress

import (
	"strings"

	"github.com/dhcgn/trapmail/model"
)

// Options that take a value, either attached (-fuser) or as the next token (-f user).
var (
	valueFlags = map[byte]model.FlagName{
		'f': model.FlagSender,
		'r': model.FlagSender,
		'F': model.FlagFullName,
	}
	// sendmail options trapmail does not model but whose separate argument must not be
	// mistaken for a recipient.
	unsupportedValueFlags = map[byte]bool{
		'B': true, 'C': true, 'h': true, 'L': true, 'N': true, 'O': true, 'R': true, 'V': true, 'X': true,
	}
	boolFlags = map[byte]model.FlagName{
		'i': model.FlagIgnoreDots,
		't': model.FlagInlineRecipients,
		'v': model.FlagVerbose,
	}
)

// ParseArgs splits sendmail arguments into the envelope and the recorded flags. Recipients
// keep their command-line order and duplicates. The sender is the value of the last -f or -r.
func ParseArgs(args []string) (model.Envelope, []model.Flag) {
	env := model.Envelope{Recipients: []string{}}
	flags := []model.Flag{}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--":
			flags = append(flags, model.Flag{Name: model.FlagEndOfOptions, Literal: arg})
			env.Recipients = append(env.Recipients, args[i+1:]...)
			i = len(args)
			continue
		case arg == "--debug":
			flags = append(flags, model.Flag{Name: model.FlagDebug, Literal: arg})
			continue
		case strings.HasPrefix(arg, "--"), arg == "-":
			flags = append(flags, model.Flag{Name: model.FlagUnsupported, Literal: arg})
			continue
		case !strings.HasPrefix(arg, "-"):
			env.Recipients = append(env.Recipients, arg)
			continue
		}

		letter, rest := arg[1], arg[2:]

		if name, ok := valueFlags[letter]; ok {
			flag := model.Flag{Name: name, Value: rest, Literal: arg}
			if rest == "" {
				if i+1 >= len(args) {
					flags = append(flags, model.Flag{Name: model.FlagUnsupported, Literal: arg})
					continue
				}
				i++
				flag.Value = args[i]
				flag.Literal = arg + " " + args[i]
			}
			if name == model.FlagSender {
				env.Sender = flag.Value
			}
			flags = append(flags, flag)
			continue
		}

		switch letter {
		case 'o':
			flags = append(flags, parseOption(arg, rest))
			continue
		case 'b':
			if rest != "" {
				flags = append(flags, model.Flag{Name: model.FlagMode, Value: rest, Literal: arg})
				continue
			}
		}

		if group, ok := boolGroup(arg); ok {
			flags = append(flags, group...)
			continue
		}

		if unsupportedValueFlags[letter] && rest == "" && i+1 < len(args) {
			i++
			flags = append(flags, model.Flag{Name: model.FlagUnsupported, Value: args[i], Literal: arg + " " + args[i]})
			continue
		}

		flags = append(flags, model.Flag{Name: model.FlagUnsupported, Literal: arg})
	}

	return env, flags
}

func parseOption(arg, rest string) model.Flag {
	switch {
	case rest == "i":
		return model.Flag{Name: model.FlagIgnoreDots, Literal: arg}
	case strings.HasPrefix(rest, "d") && len(rest) > 1:
		return model.Flag{Name: model.FlagDeliveryMode, Value: rest[1:], Literal: arg}
	case rest != "":
		return model.Flag{Name: model.FlagOption, Value: rest, Literal: arg}
	default:
		return model.Flag{Name: model.FlagUnsupported, Literal: arg}
	}
}

// boolGroup expands -i, -t, -v and clusters of them such as -ti. Each expanded flag keeps the
// cluster as its literal.
func boolGroup(arg string) ([]model.Flag, bool) {
	letters := arg[1:]
	if letters == "" {
		return nil, false
	}
	out := make([]model.Flag, 0, len(letters))
	for i := 0; i < len(letters); i++ {
		name, ok := boolFlags[letters[i]]
		if !ok {
			return nil, false
		}
		out = append(out, model.Flag{Name: name, Literal: arg})
	}
	return out, true
}

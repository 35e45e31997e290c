package server

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Command is a named action reachable from chat or the console.
type Command struct {
	Name       string
	Aliases    []string
	Permission string
	// Run receives the arguments after the command label.
	Run func(sender CommandSender, args []string) error
}

// StripColors removes "§x" formatting codes.
func StripColors(msg string) string {
	if !strings.ContainsRune(msg, '§') {
		return msg
	}
	var b strings.Builder
	skip := false
	for _, r := range msg {
		switch {
		case skip:
			skip = false
		case r == '§':
			skip = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type consoleSender struct {
	logger logrus.FieldLogger
}

func (consoleSender) Name() string                 { return "CONSOLE" }
func (consoleSender) HasPermission(string) bool    { return true }
func (c consoleSender) SendMessage(msg string) error {
	c.logger.Info(StripColors(msg))
	return nil
}

func (s *Server) registerCommand(cmd *Command) {
	for _, label := range append([]string{cmd.Name}, cmd.Aliases...) {
		label = strings.ToLower(label)
		if _, exists := s.commands[label]; exists {
			panic("command already registered: " + label)
		}
		s.commands[label] = cmd
	}
}

// execute runs one command line on behalf of sender. Must run on the event
// loop.
func (s *Server) execute(sender CommandSender, line string) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return
	}
	reply := func(msg string) {
		if err := sender.SendMessage(msg); err != nil {
			s.Logger.WithError(err).Warnf("could not reply to %s", sender.Name())
		}
	}

	cmd, ok := s.commands[strings.ToLower(fields[0])]
	if !ok {
		reply("§cUnknown command: " + fields[0])
		return
	}
	if !sender.HasPermission(cmd.Permission) {
		reply("§cYou do not have permission to use this command.")
		return
	}
	if err := cmd.Run(sender, fields[1:]); err != nil {
		s.Logger.WithError(err).Errorf("command %q issued by %s failed", line, sender.Name())
		reply("§cAn internal error occurred while running this command.")
	}
}

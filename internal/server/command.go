package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/naka-gawa/mrnag/internal/formatter"
	"github.com/naka-gawa/mrnag/internal/usecase"
)

// Subcommands understood by the slash command.
const (
	SubcommandShow    = "show"
	SubcommandHelp    = "help"
	SubcommandVersion = "version"
)

// SlashCommand is a slash command invocation with its text split into a
// subcommand and arguments.
type SlashCommand struct {
	slack.SlashCommand

	Subcommand string
	Args       []string
}

// newSlashCommand wraps the form Slack posted and parses its text.
func newSlashCommand(sc slack.SlashCommand) SlashCommand {
	cmd := SlashCommand{SlashCommand: sc}
	cmd.parse()
	return cmd
}

// parse splits Text into the subcommand and its arguments. A leading word that
// is not a known subcommand is treated as a show option.
func (s *SlashCommand) parse() {
	words := strings.Fields(s.Text)
	s.Subcommand = SubcommandShow
	if len(words) == 0 {
		return
	}
	switch w := strings.ToLower(words[0]); w {
	case SubcommandShow, SubcommandHelp, SubcommandVersion:
		s.Subcommand = w
		s.Args = words[1:]
	default:
		s.Args = words
	}
}

// showRequest is the parsed form of the show subcommand's arguments.
type showRequest struct {
	filters      []usecase.Filter
	responseType string
}

// parseShowArgs turns show options into filters. Drafts are hidden unless
// "drafts" or "only-drafts" is given; "private" answers ephemerally.
func parseShowArgs(args []string, now time.Time) (showRequest, error) {
	req := showRequest{responseType: formatter.ResponseInChannel}
	drafts := "exclude"
	var include, exclude, authors []string

	for _, arg := range args {
		key, value, hasValue := strings.Cut(arg, ":")
		switch {
		case arg == "private":
			req.responseType = formatter.ResponseEphemeral
		case arg == "drafts" || arg == "wip":
			drafts = "include"
		case arg == "only-drafts":
			drafts = "only"
		case hasValue && key == "label" && value != "":
			include = append(include, value)
		case hasValue && key == "-label" && value != "":
			exclude = append(exclude, value)
		case hasValue && key == "author" && value != "":
			authors = append(authors, value)
		case hasValue && key == "age":
			days, err := strconv.Atoi(value)
			if err != nil || days < 0 {
				return showRequest{}, fmt.Errorf("age expects a number of days, got %q", value)
			}
			req.filters = append(req.filters, usecase.MinimumAge(time.Duration(days)*24*time.Hour, now))
		default:
			return showRequest{}, fmt.Errorf("unknown option %q", arg)
		}
	}

	switch drafts {
	case "exclude":
		req.filters = append(req.filters, usecase.ExcludeDrafts())
	case "only":
		req.filters = append(req.filters, usecase.OnlyDrafts())
	}
	if len(include) > 0 {
		req.filters = append(req.filters, usecase.WithAnyLabel(include...))
	}
	if len(exclude) > 0 {
		req.filters = append(req.filters, usecase.WithoutLabels(exclude...))
	}
	if len(authors) > 0 {
		req.filters = append(req.filters, usecase.ByAuthor(authors...))
	}
	return req, nil
}

var usage = []struct {
	name string
	text string
}{
	{SubcommandShow, "*show* [private] [drafts|only-drafts] [label:X] [-label:X] [age:N] [author:X]\n" +
		"_Lists open merge requests by project._ This is the default subcommand. Without options, " +
		"drafts are hidden and the answer is posted to the channel; `private` answers only you."},
	{SubcommandHelp, "*help* [subcommand]\n_Displays this help message._"},
	{SubcommandVersion, "*version*\n_Displays the version of the deployed Mr. Nag._"},
}

func helpMessage(command string, args []string) slack.Msg {
	if command == "" {
		command = "/mrnag"
	}
	blocks := []slack.Block{formatter.Section(command + " *help*")}

	topic := ""
	if len(args) > 0 {
		topic = strings.ToLower(args[0])
	}
	for _, u := range usage {
		if topic == "" || topic == u.name {
			blocks = append(blocks, formatter.Divider(), formatter.Section(u.text))
		}
	}
	if len(blocks) == 1 {
		blocks = append(blocks, formatter.Divider(), formatter.Section(fmt.Sprintf("No help for %q :(", topic)))
	}
	return slack.Msg{ResponseType: formatter.ResponseEphemeral, Blocks: slack.Blocks{BlockSet: blocks}}
}

func textMessage(text string) slack.Msg {
	return slack.Msg{
		ResponseType: formatter.ResponseEphemeral,
		Text:         text,
		Blocks:       slack.Blocks{BlockSet: []slack.Block{formatter.Section(text)}},
	}
}

package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Stats is a snapshot of the realtime gateway.
type Stats struct {
	Sessions    int64
	Subscribers int
	Topics      int
	UsersOnline int
}

type StatsFunc func() Stats

// CommandHandler answers ops prefix commands.
type CommandHandler struct {
	stats StatsFunc
}

func NewCommandHandler(stats StatsFunc) *CommandHandler {
	return &CommandHandler{stats: stats}
}

// Handle returns the reply for a command, or nil for unknown input.
func (h *CommandHandler) Handle(content string) *discordgo.MessageEmbed {
	parts := strings.Fields(content)
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case "!status":
		return h.cmdStatus()
	case "!help":
		return cmdHelp()
	}
	return nil
}

func (h *CommandHandler) cmdStatus() *discordgo.MessageEmbed {
	st := h.stats()
	return &discordgo.MessageEmbed{
		Title: "Trilex realtime status",
		Color: 0x2ECC71,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Sessions", Value: fmt.Sprintf("%d", st.Sessions), Inline: true},
			{Name: "Users online", Value: fmt.Sprintf("%d", st.UsersOnline), Inline: true},
			{Name: "Channels", Value: fmt.Sprintf("%d", st.Topics), Inline: true},
			{Name: "Subscriptions", Value: fmt.Sprintf("%d", st.Subscribers), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Trilex"},
	}
}

func cmdHelp() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Ops commands",
		Color:       0x3498DB,
		Description: "`!status` realtime gateway counters\n`!help` this list",
	}
}

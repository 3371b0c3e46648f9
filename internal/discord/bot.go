package discord

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// Bot is the operations bot. It mirrors notifications into the ops channel
// and answers status commands there.
type Bot struct {
	session      *discordgo.Session
	opsChannelID string
	commands     *CommandHandler
}

// NewBot returns nil when no token is configured.
func NewBot(token, opsChannelID string, stats StatsFunc) (*Bot, error) {
	if token == "" {
		log.Println("[discord-bot] No bot token configured, bot disabled")
		return nil, nil
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	bot := &Bot{
		session:      s,
		opsChannelID: opsChannelID,
		commands:     NewCommandHandler(stats),
	}
	s.AddHandler(bot.onMessageCreate)
	return bot, nil
}

// Start opens the Discord gateway connection.
func (b *Bot) Start() error {
	if b == nil || b.session == nil {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return err
	}
	log.Println("[discord-bot] Bot connected to Discord")
	return nil
}

// Stop closes the Discord gateway connection.
func (b *Bot) Stop() {
	if b == nil || b.session == nil {
		return
	}
	_ = b.session.Close()
	log.Println("[discord-bot] Bot disconnected")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if b.opsChannelID != "" && m.ChannelID != b.opsChannelID {
		return
	}
	if len(m.Content) == 0 || m.Content[0] != '!' {
		return
	}
	if embed := b.commands.Handle(m.Content); embed != nil {
		if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
			log.Printf("[discord-bot] reply in %s: %v", m.ChannelID, err)
		}
	}
}

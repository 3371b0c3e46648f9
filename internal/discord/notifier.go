package discord

import (
	"context"
	"fmt"
	"log"
	"time"

	"trilex-backend/internal/model"

	"github.com/bwmarrin/discordgo"
)

// Name and Mirror make the bot a notification sink for the ops channel.
func (b *Bot) Name() string { return "discord" }

// Mirror posts the notification in the background; the caller never waits on
// Discord.
func (b *Bot) Mirror(_ context.Context, n *model.Notification) error {
	if b == nil || b.session == nil || b.opsChannelID == "" {
		return nil
	}
	embed := notificationEmbed(n)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := b.session.ChannelMessageSendEmbed(b.opsChannelID, embed, discordgo.WithContext(ctx)); err != nil {
			log.Printf("[discord-bot] mirror %s: %v", n.ID, err)
		}
	}()
	return nil
}

var typeColors = map[model.NotificationType]int{
	model.NotificationBookingCreated:         0x3498DB,
	model.NotificationBookingAccepted:        0x2ECC71,
	model.NotificationBookingRejected:        0xE74C3C,
	model.NotificationFirmInvitationReceived: 0x9B59B6,
	model.NotificationFirmInvitationAccepted: 0x2ECC71,
	model.NotificationFirmInvitationRejected: 0xE67E22,
}

// notificationEmbed carries ids only, never the recipient's personal data.
func notificationEmbed(n *model.Notification) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Type", Value: string(n.Type), Inline: true},
		{Name: "Recipient", Value: n.RecipientID, Inline: true},
	}
	if n.Actor != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Actor", Value: fmt.Sprintf("%s (%s)", n.Actor.ID, n.Actor.Role), Inline: true})
	}
	if n.EntityType != nil && n.EntityID != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Entity", Value: fmt.Sprintf("%s/%s", *n.EntityType, *n.EntityID)})
	}
	return &discordgo.MessageEmbed{
		Title:     n.Title,
		Color:     typeColors[n.Type],
		Fields:    fields,
		Timestamp: n.CreatedAt.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "notification " + n.ID},
	}
}

package service

import (
	"context"

	"trilex-backend/internal/model"
)

// RoomPolicy holds the booking-dependent rules of room membership.
type RoomPolicy interface {
	CanOpen(tx *model.Transaction, user *model.User) bool
	Founders(tx *model.Transaction) []model.NewParticipant
	CanAddMember(ctx context.Context, tx *model.Transaction, userID string) (bool, error)
}

// BookingPolicy opens rooms for the two booking parties. A firm provider
// founds its room as admin and may add lawyers from its roster.
type BookingPolicy struct {
	dir TransactionDirectory
}

func NewBookingPolicy(dir TransactionDirectory) *BookingPolicy {
	return &BookingPolicy{dir: dir}
}

func (p *BookingPolicy) CanOpen(tx *model.Transaction, user *model.User) bool {
	return user.ID == tx.ClientID || user.ID == tx.ProviderID
}

func (p *BookingPolicy) Founders(tx *model.Transaction) []model.NewParticipant {
	founders := []model.NewParticipant{{UserID: tx.ClientID}}
	switch tx.ProviderRole {
	case model.RoleLawyer:
		founders = append(founders, model.NewParticipant{UserID: tx.ProviderID})
	case model.RoleFirm:
		founders = append(founders, model.NewParticipant{UserID: tx.ProviderID, IsAdmin: true})
	}
	return founders
}

func (p *BookingPolicy) CanAddMember(ctx context.Context, tx *model.Transaction, userID string) (bool, error) {
	if !tx.MultiMember() {
		return false, nil
	}
	return p.dir.IsAffiliated(ctx, tx.ProviderID, userID)
}

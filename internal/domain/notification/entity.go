package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Type represents notification type
type Type string

const (
	TypePointsGranted      Type = "points_granted"      // Employee: admin added points
	TypePointsRemoved      Type = "points_removed"      // Employee: admin removed points
	TypeComplimentReceived Type = "compliment_received" // Employee: peer compliment
	TypeRedemption         Type = "redemption"          // Employee: own cart redeemed
	TypeRedemptionAdmin    Type = "redemption_admin"    // Admins: someone in the company redeemed
	TypeOrderPlaced        Type = "order_placed"        // Employee: order created
)

// Message is what ledger callers hand to a Sink after a commit.
type Message struct {
	AccountID uuid.UUID
	Type      Type
	Title     string
	Body      string
}

// Notification represents a stored in-app notification
type Notification struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	Type      Type           `db:"type" json:"type"`
	Title     string         `db:"title" json:"title"`
	Body      sql.NullString `db:"body" json:"-"`
	IsRead    bool           `db:"is_read" json:"is_read"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// BodyText returns the body or an empty string.
func (n *Notification) BodyText() string {
	if n.Body.Valid {
		return n.Body.String
	}
	return ""
}

package main

import (
	"io"
	"time"

	"proconnect/internal/models"

	"gopkg.in/yaml.v3"
)

type messageView struct {
	ID            uint   `yaml:"id,omitempty"`
	From          uint   `yaml:"from"`
	At            string `yaml:"at"`
	Content       string `yaml:"content"`
	State         string `yaml:"state,omitempty"`
	Read          bool   `yaml:"read,omitempty"`
	CorrelationID string `yaml:"correlation_id,omitempty"`
}

type conversationView struct {
	With   uint   `yaml:"with"`
	Last   string `yaml:"last"`
	From   uint   `yaml:"from"`
	At     string `yaml:"at"`
	Unread int    `yaml:"unread"`
}

type edgeView struct {
	ID        uint   `yaml:"id"`
	Requester uint   `yaml:"requester"`
	Receiver  uint   `yaml:"receiver"`
	Status    string `yaml:"status"`
	Message   string `yaml:"message,omitempty"`
	Since     string `yaml:"since"`
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func messageViews(msgs []models.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		v := messageView{
			ID:      m.ID,
			From:    m.SenderID,
			At:      stamp(m.CreatedAt),
			Content: m.Content,
			Read:    m.ReadAt != nil,
		}
		if m.IsOptimistic() {
			v.State = string(m.State)
			v.CorrelationID = m.CorrelationID
		}
		out = append(out, v)
	}
	return out
}

func conversationViews(list []models.ConversationSummary) []conversationView {
	out := make([]conversationView, 0, len(list))
	for _, s := range list {
		out = append(out, conversationView{
			With:   s.CounterpartID,
			Last:   s.LastMessage.Content,
			From:   s.LastMessage.SenderID,
			At:     stamp(s.LastMessage.Timestamp),
			Unread: s.UnreadCount,
		})
	}
	return out
}

func edgeViews(edges []models.ConnectionEdge) []edgeView {
	out := make([]edgeView, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeView{
			ID:        e.ID,
			Requester: e.RequesterID,
			Receiver:  e.ReceiverID,
			Status:    string(e.Status),
			Message:   e.Message,
			Since:     stamp(e.CreatedAt),
		})
	}
	return out
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

package model

import "time"

// PushMessage is the payload handed to a push sender.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

type PushToken struct {
	UserID    string
	Token     string
	Platform  string // ios | android | web
	CreatedAt time.Time
}

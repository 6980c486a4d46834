package config

import "time"

const (
	// HTTP server
	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 10 * time.Second

	// WebSocket
	WriteTimeout = 10 * time.Second

	// Lobby actors
	InboxBuffer = 64

	// Transactions
	DefaultTxAttempts = 8
	TxBaseBackoff     = 5 * time.Millisecond
	TxMaxBackoff      = 200 * time.Millisecond

	// Room engine
	DefaultSettleDelay = 500 * time.Millisecond
	MaxCodeAttempts    = 10

	// Nudges
	PublishTimeout = 5 * time.Second

	// Postgres
	DBConnectTimeout = 10 * time.Second
)

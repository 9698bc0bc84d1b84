package kafka

import "time"

// Config holds Kafka connection configuration
type Config struct {
	Brokers []string

	// Producer
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	MaxAttempts  int
	WriteTimeout time.Duration

	// Consumer
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
}

// DefaultConfig returns sensible defaults for local development
func DefaultConfig() *Config {
	return &Config{
		Brokers:        []string{"localhost:9092"},
		BatchSize:      100,
		BatchTimeout:   10 * time.Millisecond,
		RequiredAcks:   -1,
		MaxAttempts:    3,
		WriteTimeout:   10 * time.Second,
		GroupID:        "cost-engine",
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		CommitInterval: time.Second,
	}
}

// Topics lists the Kafka topics used by the cost engine
var Topics = struct {
	CostEvents          string
	RecalculationEvents string
}{
	CostEvents:          "orders.costs.events",
	RecalculationEvents: "orders.costs.recalculations",
}

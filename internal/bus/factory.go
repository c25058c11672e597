package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/logscout/internal/config"
	"github.com/ricesearch/logscout/internal/pkg/errors"
	"github.com/ricesearch/logscout/internal/pkg/logger"
)

// NewBus creates a Bus from configuration. A configured event log wraps the
// selected bus in an AuditBus.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var b Bus

	switch strings.ToLower(cfg.Type) {
	case "none":
		b = NopBus{}

	case "memory", "":
		b = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		group := cfg.KafkaGroup
		if group == "" {
			group = "logscout"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
			ClientID:      "logscout-bus",
		}, log)
		if err != nil {
			return nil, err
		}
		b = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog != "" {
		events, err := NewEventLogger(cfg.EventLog)
		if err != nil {
			b.Close()
			return nil, err
		}
		b = NewAuditBus(b, events, log)
	}

	return b, nil
}

package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
)

func TestConnectKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	t.Run("no brokers disables publishing", func(t *testing.T) {
		producer, err := connectKafka(config.KafkaConfig{}, logger)
		require.NoError(t, err)
		require.Nil(t, producer)
		disconnectKafka(producer, logger)
	})

	t.Run("unreachable broker", func(t *testing.T) {
		producer, err := connectKafka(config.KafkaConfig{
			Brokers:    []string{"127.0.0.1:1"},
			ClientID:   "storefront-ids-test",
			MaxRetries: 1,
		}, logger)
		require.ErrorContains(t, err, "connect kafka producer")
		require.Nil(t, producer)
	})
}

package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/destinations/memory"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func completion() Completion {
	return Completion{
		RunID:          "run-1",
		SourceKey:      "2024",
		Mode:           models.ModeIncremental,
		CurrentVersion: 150,
		TemporalKey:    "source_key=2024/date_extracted=2024-03-01T11:30:00Z",
		Partitions:     3,
		Records:        6,
		CompletedAt:    time.Date(2024, 3, 1, 11, 40, 0, 0, time.UTC),
	}
}

func TestLogSignaler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSignaler(zap.New(core))

	require.NoError(t, s.Signal(context.Background(), completion()))
	entries := logs.FilterMessage("extraction complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
}

func TestMarkerSignaler(t *testing.T) {
	store := memory.NewStore()
	s := NewMarkerSignaler(store, "/edfi_api/", "", nil)

	require.NoError(t, s.Signal(context.Background(), completion()))

	key := "edfi_api/_runs/source_key=2024/date_extracted=2024-03-01T11:30:00Z/_SUCCESS"
	assert.Equal(t, key, s.MarkerKey(completion().TemporalKey))
	obj, ok := store.Get(key)
	require.True(t, ok)

	var got Completion
	require.NoError(t, json.Unmarshal(obj.Body, &got))
	assert.Equal(t, completion(), got)
}

func TestMarkerSignalerFailure(t *testing.T) {
	store := memory.NewStore()
	store.FailOn = "_runs"
	s := NewMarkerSignaler(store, "root", "_DONE", nil)

	err := s.Signal(context.Background(), completion())
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestKafkaSignaler(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Completion
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.CurrentVersion != 150 {
			return assert.AnError
		}
		return nil
	})

	s := NewKafkaSignalerWithProducer(producer, "edsync.extraction.complete", nil)
	require.NoError(t, s.Signal(context.Background(), completion()))
	require.NoError(t, s.Close())
}

func TestKafkaSignalerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	s := NewKafkaSignalerWithProducer(producer, "topic", nil)
	err := s.Signal(context.Background(), completion())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, s.Close())
}

func TestNew(t *testing.T) {
	s, err := New(config.SignalConfig{Kind: "log"}, nil, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSignaler{}, s)

	_, err = New(config.SignalConfig{Kind: "marker"}, nil, "", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	s, err = New(config.SignalConfig{Kind: "marker"}, memory.NewStore(), "root", nil)
	require.NoError(t, err)
	assert.IsType(t, &MarkerSignaler{}, s)

	_, err = New(config.SignalConfig{Kind: "kafka"}, nil, "", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(config.SignalConfig{Kind: "pigeon"}, nil, "", nil)
	assert.Error(t, err)
}

func TestBuildSaramaConfig(t *testing.T) {
	sc := buildSaramaConfig(config.KafkaConfig{ClientID: "edsync"})
	assert.Equal(t, "edsync", sc.ClientID)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.True(t, sc.Producer.Return.Successes)
	assert.NoError(t, sc.Validate())
}

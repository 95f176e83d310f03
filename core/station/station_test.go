package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/infra/logger"
)

func TestConnectorsStartAvailable(t *testing.T) {
	s := New(2, logger.NopLogger{})
	assert.Equal(t, 2, s.Connectors())

	for id := 1; id <= 2; id++ {
		status, err := s.Status(id)
		require.NoError(t, err)
		assert.Equal(t, ocpp.StatusAvailable, status)
	}

	_, err := s.Status(3)
	assert.Error(t, err)
}

func TestSetStatus(t *testing.T) {
	s := New(1, logger.NopLogger{})

	changed, err := s.SetStatus(1, ocpp.StatusCharging)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetStatus(1, ocpp.StatusCharging)
	require.NoError(t, err)
	assert.False(t, changed, "same status is not a change")

	_, err = s.SetStatus(0, ocpp.StatusCharging)
	assert.Error(t, err)
}

func TestTransactionLifecycle(t *testing.T) {
	s := New(2, logger.NopLogger{})

	require.NoError(t, s.StartTransaction(Transaction{ID: 100, ConnectorID: 1, IdTag: "TAG1", MeterStart: 500}))
	assert.True(t, s.IsTransactionActive(100))

	txID, ok := s.ActiveTransaction(1)
	require.True(t, ok)
	assert.Equal(t, 100, txID)

	_, ok = s.ActiveTransaction(2)
	assert.False(t, ok)

	err := s.StartTransaction(Transaction{ID: 101, ConnectorID: 1})
	assert.Error(t, err, "one transaction per connector")

	tx, err := s.StopTransaction(100)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.ConnectorID)
	assert.Equal(t, "TAG1", tx.IdTag)
	assert.Equal(t, 500, tx.MeterStart)
	assert.False(t, s.IsTransactionActive(100))

	_, err = s.StopTransaction(100)
	assert.Error(t, err)
}

func TestStartTransactionUnknownConnector(t *testing.T) {
	s := New(1, logger.NopLogger{})
	assert.Error(t, s.StartTransaction(Transaction{ID: 1, ConnectorID: 9}))
}

func TestSnapshotOrdered(t *testing.T) {
	s := New(3, logger.NopLogger{})
	_, err := s.SetStatus(2, ocpp.StatusPreparing)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{snap[0].ID, snap[1].ID, snap[2].ID})
	assert.Equal(t, ocpp.StatusPreparing, snap[1].Status)
}

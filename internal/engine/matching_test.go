package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargebroker/internal/repository"
)

func TestMatchReservationCandidatesPrefersLowerClass(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	occupant := "sess-occupant"

	candidates := []repository.ReservationCandidate{
		{SessionID: "sess-1", StationID: "st-1", ArrivalTs: base},
	}
	chargers := []repository.AvailableCharger{
		{StationID: "st-1", ChargerID: "ch-3", Class: repository.ChargerClassBumpable, SessionToEnd: &occupant},
		{StationID: "st-1", ChargerID: "ch-1", Class: repository.ChargerClassFree},
		{StationID: "st-1", ChargerID: "ch-2", Class: repository.ChargerClassIdle},
	}

	pairs := matchReservationCandidates(candidates, chargers)
	require.Len(t, pairs, 1)
	assert.Equal(t, "ch-1", pairs[0].ChargerID)
	assert.Nil(t, pairs[0].SessionToEnd)
}

func TestMatchReservationCandidatesBumpsWhenNothingFree(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	occupant := "sess-occupant"

	candidates := []repository.ReservationCandidate{
		{SessionID: "sess-1", StationID: "st-1", ArrivalTs: base},
	}
	chargers := []repository.AvailableCharger{
		{StationID: "st-1", ChargerID: "ch-9", Class: repository.ChargerClassBumpable, SessionToEnd: &occupant},
	}

	pairs := matchReservationCandidates(candidates, chargers)
	require.Len(t, pairs, 1)
	assert.Equal(t, "ch-9", pairs[0].ChargerID)
	require.NotNil(t, pairs[0].SessionToEnd)
	assert.Equal(t, occupant, *pairs[0].SessionToEnd)
}

func TestMatchReservationCandidatesStationScoped(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	candidates := []repository.ReservationCandidate{
		{SessionID: "sess-a", StationID: "st-1", ArrivalTs: base},
		{SessionID: "sess-b", StationID: "st-2", ArrivalTs: base.Add(time.Minute)},
	}
	chargers := []repository.AvailableCharger{
		{StationID: "st-2", ChargerID: "ch-21", Class: repository.ChargerClassFree},
	}

	pairs := matchReservationCandidates(candidates, chargers)
	require.Len(t, pairs, 1)
	assert.Equal(t, "sess-b", pairs[0].SessionID)
	assert.Equal(t, "st-2", pairs[0].StationID)
}

func TestMatchReservationCandidatesArrivalOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	candidates := []repository.ReservationCandidate{
		{SessionID: "sess-late", StationID: "st-1", ArrivalTs: base.Add(time.Hour)},
		{SessionID: "sess-early", StationID: "st-1", ArrivalTs: base},
	}
	chargers := []repository.AvailableCharger{
		{StationID: "st-1", ChargerID: "ch-1", Class: repository.ChargerClassFree},
	}

	pairs := matchReservationCandidates(candidates, chargers)
	require.Len(t, pairs, 1)
	assert.Equal(t, "sess-early", pairs[0].SessionID)
}

func TestMatchQueuesFCFS(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	queue := []repository.QueueEntry{
		{SessionID: "sess-1", StationID: "st-1", ArrivalTs: base, QueuePosition: 1},
		{SessionID: "sess-2", StationID: "st-1", ArrivalTs: base.Add(time.Minute), QueuePosition: 2},
		{SessionID: "sess-3", StationID: "st-1", ArrivalTs: base.Add(2 * time.Minute), QueuePosition: 3},
	}
	free := []repository.AvailableCharger{
		{StationID: "st-1", ChargerID: "ch-1", Class: repository.ChargerClassFree},
		{StationID: "st-1", ChargerID: "ch-2", Class: repository.ChargerClassFree},
	}

	pairs := matchQueues(queue, free)
	require.Len(t, pairs, 2)
	assert.Equal(t, "sess-1", pairs[0].SessionID)
	assert.Equal(t, "ch-1", pairs[0].ChargerID)
	assert.Equal(t, "sess-2", pairs[1].SessionID)
	assert.Equal(t, "ch-2", pairs[1].ChargerID)
}

func TestMatchQueuesNoFreeChargerElsewhere(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	queue := []repository.QueueEntry{
		{SessionID: "sess-1", StationID: "st-1", ArrivalTs: base, QueuePosition: 1},
	}
	free := []repository.AvailableCharger{
		{StationID: "st-2", ChargerID: "ch-1", Class: repository.ChargerClassFree},
	}

	assert.Empty(t, matchQueues(queue, free))
}

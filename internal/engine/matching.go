package engine

import (
	"sort"

	"chargebroker/internal/repository"
)

// assignmentPair binds one waiting session to one charger. SessionToEnd, when
// set, is an occupying session whose charging must be ended as part of the
// match.
type assignmentPair struct {
	SessionID    string
	StationID    string
	ChargerID    string
	SessionToEnd *string
}

// matchReservationCandidates pairs reservation holders with available
// chargers station by station. Candidates are taken in arrival order and
// chargers in class order (free, idle, bumpable), so a holder is never bumped
// onto someone when a free charger exists at the same station.
func matchReservationCandidates(candidates []repository.ReservationCandidate, chargers []repository.AvailableCharger) []assignmentPair {
	byStation := make(map[string][]repository.AvailableCharger)
	for _, c := range chargers {
		byStation[c.StationID] = append(byStation[c.StationID], c)
	}
	for station := range byStation {
		list := byStation[station]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Class != list[j].Class {
				return list[i].Class < list[j].Class
			}
			return list[i].ChargerID < list[j].ChargerID
		})
		byStation[station] = list
	}

	ordered := make([]repository.ReservationCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ArrivalTs.Before(ordered[j].ArrivalTs)
	})

	var pairs []assignmentPair
	for _, cand := range ordered {
		available := byStation[cand.StationID]
		if len(available) == 0 {
			continue
		}
		charger := available[0]
		byStation[cand.StationID] = available[1:]
		pairs = append(pairs, assignmentPair{
			SessionID:    cand.SessionID,
			StationID:    charger.StationID,
			ChargerID:    charger.ChargerID,
			SessionToEnd: charger.SessionToEnd,
		})
	}
	return pairs
}

// matchQueues pairs each station's waiting queue with its free chargers,
// first come first served against chargers in id order.
func matchQueues(queue []repository.QueueEntry, free []repository.AvailableCharger) []assignmentPair {
	byStation := make(map[string][]repository.AvailableCharger)
	for _, c := range free {
		byStation[c.StationID] = append(byStation[c.StationID], c)
	}

	var pairs []assignmentPair
	for _, entry := range queue {
		available := byStation[entry.StationID]
		if len(available) == 0 {
			continue
		}
		charger := available[0]
		byStation[entry.StationID] = available[1:]
		pairs = append(pairs, assignmentPair{
			SessionID: entry.SessionID,
			StationID: charger.StationID,
			ChargerID: charger.ChargerID,
		})
	}
	return pairs
}

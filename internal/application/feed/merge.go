package feed

import "github.com/go-hr-sync/internal/domain"

// merge folds a snapshot into the current list. Snapshot order is kept as
// the server sent it. Read state only moves forward: an entry read locally
// stays read even if the snapshot still reports it unread.
func merge(current, snap []domain.Notification, limit int) []domain.Notification {
	snap = dedupe(snap)
	if len(snap) == 0 {
		return current
	}

	local := make(map[string]domain.Notification, len(current))
	for _, n := range current {
		local[n.NotificationID] = n
	}
	inSnap := make(map[string]bool, len(snap))
	newest, oldest := snap[0].CreatedAt, snap[0].CreatedAt
	for i := range snap {
		inSnap[snap[i].NotificationID] = true
		if prev, ok := local[snap[i].NotificationID]; ok && prev.IsRead {
			snap[i].IsRead = true
		}
		if snap[i].CreatedAt.After(newest) {
			newest = snap[i].CreatedAt
		}
		if snap[i].CreatedAt.Before(oldest) {
			oldest = snap[i].CreatedAt
		}
	}
	complete := limit <= 0 || len(snap) < limit

	var head, tail []domain.Notification
	for _, n := range current {
		if inSnap[n.NotificationID] {
			continue
		}
		switch {
		case n.CreatedAt.After(newest):
			head = append(head, n)
		case n.CreatedAt.Before(oldest) && !complete:
			tail = append(tail, n)
		}
	}

	out := make([]domain.Notification, 0, len(head)+len(snap)+len(tail))
	out = append(out, head...)
	out = append(out, snap...)
	return append(out, tail...)
}

func dedupe(list []domain.Notification) []domain.Notification {
	seen := make(map[string]bool, len(list))
	out := make([]domain.Notification, 0, len(list))
	for _, n := range list {
		if n.NotificationID == "" || seen[n.NotificationID] {
			continue
		}
		seen[n.NotificationID] = true
		out = append(out, n)
	}
	return out
}

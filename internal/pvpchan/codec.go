package pvpchan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-duel/internal/pvpchess"
)

// Hash fields. Players are stored per color so a seat claim touches one field.
const (
	fieldID       = "id"
	fieldWhite    = "players.white"
	fieldBlack    = "players.black"
	fieldTurn     = "currentTurn"
	fieldPosition = "position"
	fieldMoveLog  = "moveLog"
	fieldStatus   = "status"
	fieldLastMove = "lastMove"
	fieldUpdated  = "lastUpdated"
	fieldPlies    = "plies"
	fieldVersion  = "version"
)

func encodeSession(s pvpchess.Session) (map[string]string, error) {
	log := s.MoveLog
	if log == nil {
		log = []pvpchess.Move{}
	}
	f, err := encodeDelta(pvpchess.Delta{
		Players:     &s.Players,
		CurrentTurn: s.CurrentTurn,
		Position:    s.Position,
		MoveLog:     log,
		Status:      s.Status,
		LastMove:    s.LastMove,
		LastUpdated: s.LastUpdated,
	})
	if err != nil {
		return nil, err
	}
	f[fieldID] = s.ID
	return f, nil
}

func encodeDelta(d pvpchess.Delta) (map[string]string, error) {
	f := make(map[string]string, 9)
	if d.Players != nil {
		if d.Players.White != "" {
			f[fieldWhite] = d.Players.White
		}
		if d.Players.Black != "" {
			f[fieldBlack] = d.Players.Black
		}
	}
	if d.CurrentTurn != "" {
		f[fieldTurn] = string(d.CurrentTurn)
	}
	if d.Position != "" {
		f[fieldPosition] = d.Position
	}
	if d.MoveLog != nil {
		raw, err := json.Marshal(d.MoveLog)
		if err != nil {
			return nil, fmt.Errorf("encode moveLog: %w", err)
		}
		f[fieldMoveLog] = string(raw)
		f[fieldPlies] = strconv.Itoa(len(d.MoveLog))
	}
	if d.Status != "" {
		f[fieldStatus] = string(d.Status)
	}
	if d.LastMove != nil {
		raw, err := json.Marshal(d.LastMove)
		if err != nil {
			return nil, fmt.Errorf("encode lastMove: %w", err)
		}
		f[fieldLastMove] = string(raw)
	}
	if !d.LastUpdated.IsZero() {
		f[fieldUpdated] = d.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	return f, nil
}

func decodeSession(h map[string]string) (pvpchess.Session, error) {
	s := pvpchess.Session{
		ID:          h[fieldID],
		Players:     pvpchess.Players{White: h[fieldWhite], Black: h[fieldBlack]},
		CurrentTurn: pvpchess.Color(h[fieldTurn]),
		Position:    h[fieldPosition],
		Status:      pvpchess.Status(h[fieldStatus]),
	}
	if raw := h[fieldMoveLog]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.MoveLog); err != nil {
			return pvpchess.Session{}, fmt.Errorf("decode moveLog: %w", err)
		}
	}
	if raw := h[fieldLastMove]; raw != "" && raw != "null" {
		var mv pvpchess.Move
		if err := json.Unmarshal([]byte(raw), &mv); err != nil {
			return pvpchess.Session{}, fmt.Errorf("decode lastMove: %w", err)
		}
		s.LastMove = &mv
	}
	if raw := h[fieldUpdated]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return pvpchess.Session{}, fmt.Errorf("decode lastUpdated: %w", err)
		}
		s.LastUpdated = ts
	}
	return s, nil
}

func storedPlies(h map[string]string) int {
	n, err := strconv.Atoi(h[fieldPlies])
	if err != nil {
		return 0
	}
	return n
}

// changeNote는 pub/sub 페이로드: 기록된 필드 목록(정렬).
func changeNote(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func toArgs(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// claim은 userID가 color 좌석을 차지할 때 기록할 필드를 계산.
func claim(cur pvpchess.Session, color pvpchess.Color, userID string, now time.Time) (pvpchess.Session, map[string]string, error) {
	if _, seated := cur.Players.Seat(userID); seated {
		return cur, nil, nil
	}
	if cur.Status == pvpchess.StatusEnded {
		return cur, nil, ErrEnded
	}
	if cur.Players.Of(color) != "" {
		return cur, nil, ErrSeatTaken
	}
	next := cur.Clone()
	next.LastUpdated = now.UTC()
	fields := map[string]string{fieldUpdated: next.LastUpdated.Format(time.RFC3339Nano)}
	if color == pvpchess.White {
		next.Players.White = userID
		fields[fieldWhite] = userID
	} else {
		next.Players.Black = userID
		fields[fieldBlack] = userID
	}
	if next.Players.Full() {
		next.Status = pvpchess.StatusActive
		fields[fieldStatus] = string(pvpchess.StatusActive)
	}
	return next, fields, nil
}

package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelparty/reelroom/internal/claims"
	"github.com/reelparty/reelroom/internal/room"
)

// CodeGenerator produces candidate room codes. Collision handling stays
// with the caller; the generator only has to be human-typeable.
type CodeGenerator interface {
	NewCode() (string, error)
}

// codeAlphabet avoids 0/O, 1/I/L and similar look-alikes.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 5

type randomCodes struct{}

func (randomCodes) NewCode() (string, error) {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

type OpenRoomResponse struct {
	Code            string    `json:"code"`
	MasterSecret    string    `json:"masterSecret"`
	ExpiresAt       time.Time `json:"expiresAt"`
	ProtocolVersion int       `json:"protocolVersion"`
}

type CloseRoomRequest struct {
	MasterSecret string `json:"masterSecret"`
}

func handleOpenRoom(logger *slog.Logger, repo *room.Repository, codes CodeGenerator, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := freshCode(r, repo, codes)
		if err != nil {
			logger.Error("opening room", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		secret := uuid.NewString()
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("hashing master secret", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		now := time.Now().UTC()
		meta := &room.Meta{
			Code:            code,
			CreatedAt:       now,
			ExpiresAt:       now.Add(ttl),
			MasterHash:      string(hash),
			ProtocolVersion: ProtocolVersion,
		}
		if err := repo.Create(r.Context(), meta, room.NewState(code), ttl); err != nil {
			logger.Error("creating room", "room", code, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("room opened", "room", code)
		writeJSON(w, http.StatusCreated, OpenRoomResponse{
			Code:            code,
			MasterSecret:    secret,
			ExpiresAt:       meta.ExpiresAt,
			ProtocolVersion: ProtocolVersion,
		})
	}
}

// freshCode retries the generator until a code is unused. A handful of
// attempts is plenty for the code space vs. concurrent room count.
func freshCode(r *http.Request, repo *room.Repository, codes CodeGenerator) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := codes.NewCode()
		if err != nil {
			return "", err
		}
		taken, err := repo.Exists(r.Context(), code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("room code space exhausted")
}

func handleCloseRoom(logger *slog.Logger, repo *room.Repository, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		var req CloseRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.MasterSecret == "" {
			writeError(w, http.StatusBadRequest, "masterSecret is required")
			return
		}

		meta, err := repo.GetMeta(r.Context(), code)
		if errors.Is(err, room.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if err != nil {
			logger.Error("loading room meta", "room", code, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(meta.MasterHash), []byte(req.MasterSecret)) != nil {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		// Closure notice first, then the keys go away.
		hub.Each(code, func(peer *session) {
			peer.send("room_closed", nil)
		})

		if err := repo.DeleteAll(r.Context(), code); err != nil {
			logger.Error("deleting room", "room", code, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("room closed", "room", code)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRoomClaims is a master-facing peek at a room's claim table,
// mostly for debugging stuck seats.
func handleRoomClaims(logger *slog.Logger, repo *room.Repository, reg *claims.Registry) http.HandlerFunc {
	type response struct {
		Claims map[string]string `json:"claims"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		var req CloseRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		meta, err := repo.GetMeta(r.Context(), code)
		if errors.Is(err, room.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if err != nil {
			logger.Error("loading room meta", "room", code, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(meta.MasterHash), []byte(req.MasterSecret)) != nil {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		all, err := reg.All(r.Context(), code)
		if err != nil {
			logger.Error("reading claims", "room", code, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, response{Claims: all})
	}
}

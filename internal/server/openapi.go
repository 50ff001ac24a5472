package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "ReelRoom API"
	r.Spec.Info.Version = "0.2.0"
	r.Spec.Info.WithDescription("Room lifecycle API for the reelroom party game. Gameplay itself runs over the /ws websocket.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws")
	getWS.SetSummary("Game session socket")
	getWS.SetDescription("Upgrades to the websocket session protocol. The first frame must be a join message.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// POST /api/rooms
	postRooms, _ := r.NewOperationContext(http.MethodPost, "/api/rooms")
	postRooms.SetSummary("Open room")
	postRooms.SetDescription("Creates a room and returns its join code and the master secret. The secret is shown exactly once.")
	postRooms.AddRespStructure(OpenRoomResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	postRooms.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusInternalServerError))
	_ = r.AddOperation(postRooms)

	// DELETE /api/rooms/{code}
	deleteRoom, _ := r.NewOperationContext(http.MethodDelete, "/api/rooms/{code}")
	deleteRoom.SetSummary("Close room")
	deleteRoom.SetDescription("Broadcasts a closure notice to all connected sessions, then deletes every key of the room. Requires the master secret.")
	deleteRoom.AddReqStructure(CloseRoomRequest{})
	deleteRoom.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	deleteRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteRoom)

	// POST /api/rooms/{code}/claims
	postClaims, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/claims")
	postClaims.SetSummary("Inspect claims")
	postClaims.SetDescription("Returns the room's player-to-device claim table. Requires the master secret.")
	postClaims.AddReqStructure(CloseRoomRequest{})
	postClaims.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	postClaims.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	_ = r.AddOperation(postClaims)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(data)
	}
}

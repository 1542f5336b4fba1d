package handlers

import (
	"encoding/json"
	"testing"

	ws "github.com/event-reminder/backend/internal/websocket"
)

func TestHandleClientMessage(t *testing.T) {
	client := ws.NewClient(ws.NewHub())

	tests := []struct {
		name     string
		message  string
		wantType ws.MessageType
		wantIDs  []int64
	}{
		{"subscribe", `{"type":"subscribe","group_ids":[5,2]}`, ws.TypeSubscribeAck, []int64{2, 5}},
		{"unsubscribe", `{"type":"unsubscribe","group_ids":[5]}`, ws.TypeSubscribeAck, []int64{2}},
		{"ping", `{"type":"ping"}`, ws.TypePong, nil},
		{"unknown type", `{"type":"dance"}`, ws.TypeError, nil},
		{"not json", `hello`, ws.TypeError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := handleClientMessage([]byte(tt.message), client)
			if reply.Type != tt.wantType {
				t.Fatalf("type = %s, want %s", reply.Type, tt.wantType)
			}
			if tt.wantIDs == nil {
				return
			}

			data, err := reply.JSON()
			if err != nil {
				t.Fatalf("JSON: %v", err)
			}
			var decoded struct {
				Payload ws.SubscribeAckPayload `json:"payload"`
			}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			got := decoded.Payload.GroupIDs
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("group ids = %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Errorf("group ids = %v, want %v", got, tt.wantIDs)
				}
			}
		})
	}
}

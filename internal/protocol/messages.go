// Package protocol defines the JSON wire format spoken over a client's
// websocket: {type, payload} envelopes with a closed set of inbound
// payloads, validated at decode time.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/prajyot7070/MetaSpace/internal/domain"
)

// Inbound message types.
const (
	TypeJoin             = "join"
	TypeMove             = "move"
	TypeRouterRTPCaps    = "routerRTPCapabilities"
	TypeCall             = "call"
	TypeCallAccept       = "call-accept"
	TypeCallReject       = "call-reject"
	TypeConnectTransport = "connect-transport"
	TypeProduce          = "produce"
	TypeConsume          = "consume"
)

// Outbound message types.
const (
	TypeSpaceJoined        = "space-joined"
	TypeUserJoined         = "user-joined"
	TypeUserLeft           = "user-left"
	TypeNearbyUsers        = "nearby-users-updated"
	TypeGroupUpdate        = "proximity-group-update"
	TypeRTPCaps            = "rtpCapabilities"
	TypeIncomingCall       = "incoming-call"
	TypeCallResponse       = "call-response"
	TypeCallAccepted       = "call-accepted"
	TypeUserJoinedCall     = "user-joined-call"
	TypeCallRejected       = "call-rejected"
	TypeCallError          = "call-error"
	TypeTransportConnected = "transport-connected"
	TypeTransportError     = "transport-error"
	TypeProducerCreated    = "producer-created"
	TypeProduceError       = "produce-error"
	TypeNewProducer        = "new-producer"
	TypeConsumerCreated    = "consumer-created"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	validate       = validator.New()
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Join struct {
	SpaceID string `json:"spaceId" validate:"required"`
}

type Move struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RouterRTPCaps struct{}

type Call struct {
	Token string `json:"token" validate:"required"`
}

type CallAccept struct {
	Token string `json:"token" validate:"required"`
}

type CallReject struct {
	Token    string `json:"token"`
	CallerID string `json:"callerId" validate:"required"`
}

type ConnectTransport struct {
	RoomID         string          `json:"roomId" validate:"required"`
	TransportID    string          `json:"transportId" validate:"required"`
	DTLSParameters json.RawMessage `json:"dtlsParameters" validate:"required"`
}

type Produce struct {
	RoomID        string          `json:"roomId" validate:"required"`
	UserID        string          `json:"userId"`
	TransportID   string          `json:"transportId" validate:"required"`
	Kind          string          `json:"kind" validate:"required,oneof=audio video"`
	RTPParameters json.RawMessage `json:"rtpParameters" validate:"required"`
}

type Consume struct {
	RoomID          string          `json:"roomId" validate:"required"`
	UserID          string          `json:"userId"`
	TransportID     string          `json:"transportId" validate:"required"`
	ProducerID      string          `json:"producerId" validate:"required"`
	RTPCapabilities json.RawMessage `json:"rtpCapabilities" validate:"required"`
}

// Decode parses one inbound frame into its typed payload. Unknown types
// yield ErrUnknownType; malformed or incomplete payloads yield a
// descriptive error and never a partial message.
func Decode(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("bad envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeJoin:
		msg = &Join{}
	case TypeMove:
		msg = &Move{}
	case TypeRouterRTPCaps:
		return env.Type, &RouterRTPCaps{}, nil
	case TypeCall:
		msg = &Call{}
	case TypeCallAccept:
		msg = &CallAccept{}
	case TypeCallReject:
		msg = &CallReject{}
	case TypeConnectTransport:
		msg = &ConnectTransport{}
	case TypeProduce:
		msg = &Produce{}
	case TypeConsume:
		msg = &Consume{}
	default:
		return env.Type, nil, ErrUnknownType
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return env.Type, nil, fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
	}
	if err := validate.Struct(msg); err != nil {
		return env.Type, nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// Out is an outbound envelope; payload is marshaled as-is.
type Out struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type UserInfo struct {
	ID domain.UserID `json:"id"`
	X  float64       `json:"x"`
	Y  float64       `json:"y"`
}

func SpaceJoined(spawn domain.Point, users []UserInfo) Out {
	if users == nil {
		users = []UserInfo{}
	}
	return Out{Type: TypeSpaceJoined, Payload: struct {
		Spawn domain.Point `json:"spawn"`
		Users []UserInfo   `json:"users"`
	}{spawn, users}}
}

func UserJoined(id domain.UserID, pos domain.Point) Out {
	return Out{Type: TypeUserJoined, Payload: struct {
		UserID domain.UserID `json:"userId"`
		X      float64       `json:"x"`
		Y      float64       `json:"y"`
	}{id, pos.X, pos.Y}}
}

func UserMoved(id domain.UserID, pos domain.Point) Out {
	return Out{Type: TypeMove, Payload: struct {
		UserID domain.UserID `json:"userId"`
		X      float64       `json:"x"`
		Y      float64       `json:"y"`
	}{id, pos.X, pos.Y}}
}

func UserLeft(id domain.UserID) Out {
	return Out{Type: TypeUserLeft, Payload: struct {
		UserID domain.UserID `json:"userId"`
	}{id}}
}

func NearbyUsersUpdated(nearby, added, removed []domain.UserID) Out {
	return Out{Type: TypeNearbyUsers, Payload: struct {
		Nearby  []domain.UserID `json:"nearby"`
		Added   []domain.UserID `json:"added"`
		Removed []domain.UserID `json:"removed"`
	}{orEmpty(nearby), orEmpty(added), orEmpty(removed)}}
}

func GroupUpdate(g *domain.Group, action domain.GroupAction) Out {
	return Out{Type: TypeGroupUpdate, Payload: struct {
		GroupID domain.GroupID     `json:"groupId"`
		Token   string             `json:"token"`
		Members []domain.UserID    `json:"members"`
		Action  domain.GroupAction `json:"action"`
	}{g.ID, g.Token, orEmpty(g.MemberIDs()), action}}
}

func RTPCapabilities(caps json.RawMessage) Out {
	return Out{Type: TypeRTPCaps, Payload: struct {
		RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	}{caps}}
}

func IncomingCall(token string, caller domain.UserID) Out {
	return Out{Type: TypeIncomingCall, Payload: struct {
		Token    string        `json:"token"`
		CallerID domain.UserID `json:"callerId"`
	}{token, caller}}
}

type transportPairPayload struct {
	ProducerTransportParams json.RawMessage `json:"producerTransportParams"`
	ConsumerTransportParams json.RawMessage `json:"consumerTransportParams"`
	RoomID                  string          `json:"roomId"`
	UserID                  domain.UserID   `json:"userId"`
}

func CallResponse(producer, consumer json.RawMessage, roomID string, userID domain.UserID) Out {
	return Out{Type: TypeCallResponse, Payload: transportPairPayload{producer, consumer, roomID, userID}}
}

func CallAccepted(producer, consumer json.RawMessage, roomID string, userID domain.UserID) Out {
	return Out{Type: TypeCallAccepted, Payload: transportPairPayload{producer, consumer, roomID, userID}}
}

func UserJoinedCall(id domain.UserID) Out {
	return Out{Type: TypeUserJoinedCall, Payload: struct {
		UserID domain.UserID `json:"userId"`
	}{id}}
}

func CallRejected(id domain.UserID) Out {
	return Out{Type: TypeCallRejected, Payload: struct {
		UserID domain.UserID `json:"userId"`
	}{id}}
}

func CallError(msg string) Out {
	return Out{Type: TypeCallError, Payload: struct {
		Message string `json:"message"`
	}{msg}}
}

func TransportConnected(transportID string) Out {
	return Out{Type: TypeTransportConnected, Payload: struct {
		TransportID string `json:"transportId"`
	}{transportID}}
}

func TransportError(msg string) Out {
	return Out{Type: TypeTransportError, Payload: struct {
		Message string `json:"message"`
	}{msg}}
}

func ProducerCreated(transportID, producerID string) Out {
	return Out{Type: TypeProducerCreated, Payload: struct {
		TransportID string `json:"transportId"`
		ProducerID  string `json:"producerId"`
	}{transportID, producerID}}
}

func ProduceError(msg string) Out {
	return Out{Type: TypeProduceError, Payload: struct {
		Message string `json:"message"`
	}{msg}}
}

func NewProducer(roomID, producerID string) Out {
	return Out{Type: TypeNewProducer, Payload: struct {
		RoomID     string `json:"roomId"`
		ProducerID string `json:"producerId"`
	}{roomID, producerID}}
}

func ConsumerCreated(consumerID, producerID, kind string, rtpParameters json.RawMessage) Out {
	return Out{Type: TypeConsumerCreated, Payload: struct {
		ConsumerID    string          `json:"consumerId"`
		ProducerID    string          `json:"producerId"`
		Kind          string          `json:"kind"`
		RTPParameters json.RawMessage `json:"rtpParameters"`
	}{consumerID, producerID, kind, rtpParameters}}
}

func orEmpty(ids []domain.UserID) []domain.UserID {
	if ids == nil {
		return []domain.UserID{}
	}
	return ids
}

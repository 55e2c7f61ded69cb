package roomclient

import (
	"errors"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	frameAuth  = "auth"
	frameJoin  = "join"
	frameChat  = "chat"
	frameError = "error"
)

type frame struct {
	Type    string
	Room    string
	Sender  string
	Message string
	Token   string
	UserID  string
}

func encodeFrame(f frame) ([]byte, error) {
	m := map[string]any{"type": f.Type}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("room", f.Room)
	set("sender", f.Sender)
	set("message", f.Message)
	set("token", f.Token)
	set("user_id", f.UserID)

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func decodeFrame(data []byte) (frame, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return frame{}, err
	}
	fields := s.GetFields()
	str := func(k string) string { return fields[k].GetStringValue() }

	f := frame{
		Type:    str("type"),
		Room:    str("room"),
		Sender:  str("sender"),
		Message: str("message"),
		Token:   str("token"),
		UserID:  str("user_id"),
	}
	if f.Type == "" {
		return frame{}, errors.New("frame without type")
	}
	return f, nil
}

package protocol

import "encoding/json"

// Older clients emitted joinRoom with a bare string room instead of an
// object. Both forms normalize into the same struct here.
func (r *JoinRoomRequest) UnmarshalJSON(data []byte) error {
	var room string
	if err := json.Unmarshal(data, &room); err == nil {
		r.Room = room
		return nil
	}
	type plain JoinRoomRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = JoinRoomRequest(p)
	return nil
}

// A repliedTo reference may be a bare message id (legacy) or a structured
// preview. The bare form leaves Content and SenderName empty; readers fall
// back to their local message list for the excerpt.
func (r *ReplyRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = ReplyRef{ID: id}
		return nil
	}
	type plain ReplyRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ReplyRef(p)
	return nil
}

// messageDeleted used to carry just the message id.
func (d *DeletedPayload) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*d = DeletedPayload{MessageID: id}
		return nil
	}
	type plain DeletedPayload
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = DeletedPayload(p)
	return nil
}

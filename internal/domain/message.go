package domain

import (
	"encoding/json"
)

type MessageType string

const (
	AuthRequired MessageType = "AUTH_REQUIRED"
	AuthSuccess  MessageType = "AUTH_SUCCESS"
	AuthFailed   MessageType = "AUTH_FAILED"
	PlaySong     MessageType = "PLAY_SONG"
	SongPlaying  MessageType = "SONG_PLAYING"
	SongMetadata MessageType = "SONG_METADATA"
	SongEnded    MessageType = "SONG_ENDED"
	SongNotFound MessageType = "SONG_NOT_FOUND"
	SongStopped  MessageType = "SONG_STOPPED"
	StopSong     MessageType = "STOP_SONG"
	StreamError  MessageType = "STREAM_ERROR"
	GetSongs     MessageType = "GET_SONGS"
	SongList     MessageType = "SONG_LIST"
	Pause        MessageType = "PAUSE"
	Paused       MessageType = "PAUSED"
	Resume       MessageType = "RESUME"
	Resumed      MessageType = "RESUMED"
)

// carriesSongs reports whether the message type always serializes a songs array.
func (t MessageType) carriesSongs() bool {
	return t == AuthSuccess || t == SongList
}

// ControlMessage is the JSON envelope exchanged in text frames. Audio bytes never travel inside it.
type ControlMessage struct {
	Type  MessageType `json:"type"`
	Name  string      `json:"name,omitempty"`
	Size  *int64      `json:"size,omitempty"`
	Songs []string    `json:"songs,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (m ControlMessage) MarshalJSON() ([]byte, error) {
	type plain ControlMessage
	if !m.Type.carriesSongs() {
		return json.Marshal(plain(m))
	}

	songs := m.Songs
	if songs == nil {
		songs = []string{}
	}

	return json.Marshal(struct {
		plain
		Songs []string `json:"songs"`
	}{plain(m), songs})
}

func NewMessage(t MessageType) ControlMessage {
	return ControlMessage{Type: t}
}

func NewSongMessage(t MessageType, name string) ControlMessage {
	return ControlMessage{Type: t, Name: name}
}

func NewSongListMessage(t MessageType, songs []string) ControlMessage {
	return ControlMessage{Type: t, Songs: songs}
}

func NewSongMetadataMessage(name string, size int64) ControlMessage {
	return ControlMessage{Type: SongMetadata, Name: name, Size: &size}
}

func NewStreamErrorMessage(err error) ControlMessage {
	return ControlMessage{Type: StreamError, Error: err.Error()}
}

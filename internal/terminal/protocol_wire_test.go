package terminal

import "testing"

func TestEncodeDecodeMessageRoundTrips(t *testing.T) {
	original := Message{Type: MsgEnqueueRequest, SessionID: "s1", Request: &CommandRequest{ID: "r1", Command: "ls"}}

	line, err := EncodeMessage(original)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	decoded, err := DecodeMessage(line[:len(line)-1]) // strip trailing newline
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if decoded.Type != MsgEnqueueRequest || decoded.SessionID != "s1" {
		t.Fatalf("unexpected decoded message: %+v", decoded)
	}
	if decoded.Request == nil || decoded.Request.Command != "ls" {
		t.Fatalf("expected decoded request payload, got %+v", decoded.Request)
	}
}

func TestDecodeMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := DecodeMessage("not json"); err == nil {
		t.Fatal("expected an error decoding invalid JSON")
	}
}

func TestOutputResultMessageCarriesSessionID(t *testing.T) {
	msg := OutputResultMessage(ReadOutputResponse{SessionID: "s1", Stdout: "hi"})
	if msg.Type != MsgOutputResult || msg.SessionID != "s1" || msg.Output == nil || msg.Output.Stdout != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

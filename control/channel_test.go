package control

import "testing"

func TestChannelRequestReply(t *testing.T) {
	ch, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	go func() {
		_ = ch.Serve(func(req string) string {
			return "echo:" + req
		})
	}()

	client, err := Dial(ch.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	reply, err := client.Send("freq=101300000")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "echo:freq=101300000" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestChannelRefusesSecondConnection(t *testing.T) {
	ch, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	go func() {
		_ = ch.Serve(func(req string) string { return "ok" })
	}()

	first, err := Dial(ch.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	if _, err := first.Send("ping"); err != nil {
		t.Fatal(err)
	}

	second, err := Dial(ch.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	// The second connection is accepted at the TCP level but immediately
	// closed by the server without a reply.
	if _, err := second.Send("ping"); err == nil {
		t.Fatal("expected the second peer's request to fail")
	}
}

func TestChannelRejectsOversizedMessage(t *testing.T) {
	ch, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	go func() {
		_ = ch.Serve(func(req string) string { return "ok" })
	}()

	client, err := Dial(ch.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	big := make([]byte, MaxMessageSize+1)
	for i := range big {
		big[i] = 'a'
	}
	// writeMessage refuses oversized messages itself, so frame this one by
	// hand to make the server see the oversized length prefix.
	n := uint32(len(big))
	hdr := []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	if _, err := client.conn.Write(append(hdr, big...)); err != nil {
		t.Fatalf("client-side write should succeed, server rejects on read: %v", err)
	}

	if _, err := readMessage(client.r); err == nil {
		t.Fatal("expected connection to be closed after oversized message")
	}
}

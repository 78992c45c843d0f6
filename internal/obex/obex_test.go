package obex_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/1ureka/syncpad/internal/obex"
)

// TestHeaderEncoding verifies wire length and layout for each header class.
func TestHeaderEncoding(t *testing.T) {
	testCases := []struct {
		name   string
		header obex.Header
		want   []byte
	}{
		{
			name:   "connection id is fixed 5 bytes",
			header: obex.Uint32Header(obex.HeaderConnection, 0x01020304),
			want:   []byte{0xCB, 0x01, 0x02, 0x03, 0x04},
		},
		{
			name:   "bare name header",
			header: obex.EmptyHeader(obex.HeaderName),
			want:   []byte{0x01, 0x00, 0x03},
		},
		{
			name:   "name header is null terminated utf-16be",
			header: obex.NameHeader("ab"),
			want:   []byte{0x01, 0x00, 0x09, 0x00, 'a', 0x00, 'b', 0x00, 0x00},
		},
		{
			name:   "empty name gives bare header",
			header: obex.NameHeader(""),
			want:   []byte{0x01, 0x00, 0x03},
		},
		{
			name:   "type header",
			header: mustHeader(t, obex.HeaderType, []byte("x\x00")),
			want:   []byte{0x42, 0x00, 0x05, 'x', 0x00},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.header.AppendTo(nil)
			if !bytes.Equal(got, tc.want) {
				t.Errorf("encoding mismatch: got % X, want % X", got, tc.want)
			}
			if tc.header.Len() != len(got) {
				t.Errorf("Len() = %d, encoded %d bytes", tc.header.Len(), len(got))
			}
		})
	}
}

// TestHeaderRoundTrip verifies that bodies survive being carried in a
// response and parsed back.
func TestHeaderRoundTrip(t *testing.T) {
	bodies := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1000),
	}
	for _, body := range bodies {
		h := mustHeader(t, obex.HeaderBody, body)
		pkt := responsePacket(obex.Continue, h)

		resp, err := obex.ParseResponse(pkt)
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		got, ok := resp.Header(obex.HeaderBody)
		if !ok {
			t.Fatal("BODY header missing after round trip")
		}
		if !bytes.Equal(got.Body(), body) {
			t.Errorf("body mismatch: got %d bytes, want %d", len(got.Body()), len(body))
		}
		if got.Len() != 3+len(body) {
			t.Errorf("Len() = %d, want %d", got.Len(), 3+len(body))
		}
	}
}

func TestNewHeaderRejectsBadConnectionBody(t *testing.T) {
	if _, err := obex.NewHeader(obex.HeaderConnection, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for 3-byte CONNECTION body")
	}
	if _, err := obex.NewHeader(obex.HeaderConnection, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("4-byte CONNECTION body rejected: %v", err)
	}
}

func TestNameRoundTrip(t *testing.T) {
	for _, name := range []string{"a.txt", "Notes 2015", "ünïcode.pdf"} {
		got, err := obex.DecodeName(obex.EncodeName(name))
		if err != nil {
			t.Fatalf("DecodeName(%q) failed: %v", name, err)
		}
		if got != name {
			t.Errorf("round trip: got %q, want %q", got, name)
		}
		if h := obex.NameHeader(name); h.Name() != name {
			t.Errorf("NameHeader(%q).Name() = %q", name, h.Name())
		}
	}
}

// TestRequestReplacesHeader verifies that adding a header twice with the same
// id keeps one copy in its original position.
func TestRequestReplacesHeader(t *testing.T) {
	req := obex.NewRequest(obex.OpGet)
	req.AddHeader(obex.Uint32Header(obex.HeaderConnection, 1))
	req.AddHeader(obex.NameHeader("first"))
	req.AddHeader(obex.Uint32Header(obex.HeaderConnection, 7))

	headers := req.Headers()
	if len(headers) != 2 {
		t.Fatalf("got %d headers, want 2", len(headers))
	}
	if headers[0].ID() != obex.HeaderConnection {
		t.Errorf("first header = %s, want CONNECTION", headers[0].ID())
	}
	if v, _ := headers[0].Uint32(); v != 7 {
		t.Errorf("connection id = %d, want 7", v)
	}

	data, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := 3 + 5 + obex.NameHeader("first").Len()
	if len(data) != want || req.Len() != want {
		t.Errorf("encoded length %d / Len() %d, want %d", len(data), req.Len(), want)
	}
	if obex.Length(data[1:3]) != len(data) {
		t.Errorf("declared length %d, actual %d", obex.Length(data[1:3]), len(data))
	}
}

func TestRequestEncodeIsStable(t *testing.T) {
	req := obex.NewRequest(obex.OpSetPath)
	req.SetFlags(obex.FlagDontCreateFolder)
	req.AddHeader(obex.NameHeader("docs"))

	a, _ := req.Encode()
	b, _ := req.Encode()
	if !bytes.Equal(a, b) {
		t.Fatal("repeated Encode produced different bytes")
	}

	req.SetFlags(obex.FlagBackup | obex.FlagDontCreateFolder)
	c, _ := req.Encode()
	if c[3] != obex.FlagBackup|obex.FlagDontCreateFolder {
		t.Errorf("flags byte = 0x%02X after SetFlags", c[3])
	}
	if a[3] != obex.FlagDontCreateFolder {
		t.Errorf("earlier encoding was modified: flags 0x%02X", a[3])
	}
}

func TestConnectRequestLayout(t *testing.T) {
	target := []byte{0xF9, 0xEC, 0x7B, 0xC4}
	req := obex.NewRequest(obex.OpConnect)
	req.AddHeader(mustHeader(t, obex.HeaderTarget, target))

	data, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{
		0x80, 0x00, 0x0E, // opcode + length 14
		0x10, 0x00, 0xFF, 0xDC, // version, flags, max packet
		0x46, 0x00, 0x07, 0xF9, 0xEC, 0x7B, 0xC4,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("CONNECT encoding:\n got % X\nwant % X", data, want)
	}
}

func TestSetPathRequestLayout(t *testing.T) {
	req := obex.NewRequest(obex.OpSetPath)
	req.SetFlags(obex.FlagBackup | obex.FlagDontCreateFolder)
	req.AddHeader(obex.Uint32Header(obex.HeaderConnection, 1))

	data, _ := req.Encode()
	want := []byte{0x85, 0x00, 0x0A, 0x03, 0x00, 0xCB, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(data, want) {
		t.Errorf("SET_PATH encoding:\n got % X\nwant % X", data, want)
	}
}

// TestParseConnectResponse verifies that the CONNECT fields are consumed as
// fields, not as a header.
func TestParseConnectResponse(t *testing.T) {
	pkt := []byte{
		0xA0, 0x00, 0x0C,
		0x10, 0x00, 0x04, 0x00,
		0xCB, 0x00, 0x00, 0x00, 0x2A,
	}
	resp, err := obex.ParseConnectResponse(pkt)
	if err != nil {
		t.Fatalf("ParseConnectResponse failed: %v", err)
	}
	if resp.Code != obex.Success {
		t.Errorf("code = %s, want SUCCESS", resp.Code)
	}
	if resp.Version != obex.Version || resp.MaxPacketSize != 0x0400 {
		t.Errorf("version 0x%02X max %d", resp.Version, resp.MaxPacketSize)
	}
	conn, ok := resp.Header(obex.HeaderConnection)
	if !ok {
		t.Fatal("CONNECTION header missing")
	}
	if v, _ := conn.Uint32(); v != 42 {
		t.Errorf("connection id = %d, want 42", v)
	}
	if _, ok := resp.Header(obex.HeaderID(0x10)); ok {
		t.Error("CONNECT fields were parsed as a header")
	}
}

func TestParseResponseNoHeaders(t *testing.T) {
	resp, err := obex.ParseResponse([]byte{0xA0, 0x00, 0x03})
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if _, ok := resp.Header(obex.HeaderBody); ok {
		t.Error("unexpected header in empty response")
	}
}

func TestParseResponseLastHeaderWins(t *testing.T) {
	pkt := responsePacket(obex.Continue,
		mustHeader(t, obex.HeaderBody, []byte("one")),
		mustHeader(t, obex.HeaderBody, []byte("two")),
	)
	resp, err := obex.ParseResponse(pkt)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	h, _ := resp.Header(obex.HeaderBody)
	if string(h.Body()) != "two" {
		t.Errorf("body = %q, want %q", h.Body(), "two")
	}
}

// TestParseResponseMalformed verifies that short or inconsistent buffers fail
// instead of reading out of bounds.
func TestParseResponseMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"2 bytes", []byte{0xA0, 0x00}},
		{"declared longer than buffer", []byte{0xA0, 0x00, 0x10, 0xCB}},
		{"declared below minimum", []byte{0xA0, 0x00, 0x01}},
		{"truncated connection header", []byte{0xA0, 0x00, 0x05, 0xCB, 0x00}},
		{"header length past end", []byte{0xA0, 0x00, 0x06, 0x48, 0x00, 0x09}},
		{"header length below prefix", []byte{0xA0, 0x00, 0x06, 0x48, 0x00, 0x01}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := obex.ParseResponse(tc.data)
			if !errors.Is(err, obex.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestReadPacket(t *testing.T) {
	first := responsePacket(obex.Continue, mustHeader(t, obex.HeaderBody, []byte("abc")))
	second := []byte{0xA0, 0x00, 0x03}
	stream := bytes.NewReader(append(append([]byte{}, first...), second...))

	got, err := obex.ReadPacket(stream)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("first packet: got % X, err %v", got, err)
	}
	got, err = obex.ReadPacket(stream)
	if err != nil || !bytes.Equal(got, second) {
		t.Fatalf("second packet: got % X, err %v", got, err)
	}
	if _, err := obex.ReadPacket(stream); err == nil {
		t.Fatal("expected EOF after last packet")
	}
}

func TestParseFolderListing(t *testing.T) {
	doc := []byte(`<?xml version="1.0"?>
<!DOCTYPE folder-listing SYSTEM "obex-folder-listing.dtd">
<folder-listing version="1.0">
  <parent-folder/>
  <folder name="2015" modified="20150101T000000Z"/>
  <folder name="Inbox" modified="20150202T000000Z"/>
  <file name="page1.pdf" modified="20150303T101010Z" size="1234"/>
</folder-listing>` + "\x00")

	listing, err := obex.ParseFolderListing(doc)
	if err != nil {
		t.Fatalf("ParseFolderListing failed: %v", err)
	}
	if len(listing.Folders) != 2 || len(listing.Files) != 1 {
		t.Fatalf("got %d folders / %d files", len(listing.Folders), len(listing.Files))
	}
	if listing.Folders[1].Name != "Inbox" {
		t.Errorf("folder name = %q", listing.Folders[1].Name)
	}
	f := listing.Files[0]
	if f.Name != "page1.pdf" || f.Size != 1234 || f.Modified != "20150303T101010Z" {
		t.Errorf("file entry = %+v", f)
	}
}

func TestParseFolderListingAnyRoot(t *testing.T) {
	doc := []byte(`<x-obex-listing><folder name="Notes"/><file name="a.pdf" size="7"/></x-obex-listing>`)
	listing, err := obex.ParseFolderListing(doc)
	if err != nil {
		t.Fatalf("ParseFolderListing failed: %v", err)
	}
	if len(listing.Folders) != 1 || listing.Folders[0].Name != "Notes" {
		t.Errorf("folders = %+v", listing.Folders)
	}
	if len(listing.Files) != 1 || listing.Files[0].Size != 7 {
		t.Errorf("files = %+v", listing.Files)
	}
}

func TestParseFolderListingRejectsGarbage(t *testing.T) {
	if _, err := obex.ParseFolderListing([]byte("not xml at all")); err == nil {
		t.Fatal("expected error for non-XML body")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mustHeader(t *testing.T, id obex.HeaderID, body []byte) obex.Header {
	t.Helper()
	h, err := obex.NewHeader(id, body)
	if err != nil {
		t.Fatalf("NewHeader(%s): %v", id, err)
	}
	return h
}

// responsePacket assembles a response with the given headers.
func responsePacket(code obex.ResponseCode, headers ...obex.Header) []byte {
	buf := []byte{byte(code), 0, 0}
	for _, h := range headers {
		buf = h.AppendTo(buf)
	}
	obex.PutLength(buf[1:3], len(buf))
	return buf
}

package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
	v1 "xdp-service/internal/format/v1"
)

// --- モック ---

type mockTransport struct {
	lastMessage []byte
	response    []byte
	err         error
}

func (m *mockTransport) Send(_ context.Context, message []byte) ([]byte, error) {
	m.lastMessage = message
	return m.response, m.err
}

func (m *mockTransport) Close() error { return nil }

type mockAuthority struct {
	domainHeaderErr error
	lastCaller      domain.Principal
	released        *format.Keys
}

func (m *mockAuthority) RequestDomainHeader(_ context.Context, caller domain.Principal, req *RequestDomainHeader) (*ResponseDomainHeader, error) {
	m.lastCaller = caller
	if m.domainHeaderErr != nil {
		return nil, m.domainHeaderErr
	}
	return &ResponseDomainHeader{
		DomainHeader:    v1.NewDomainHeader("DS01", req.Identities.List(), []byte{0xAB}),
		DomainSignature: []byte{0x01, 0x02},
	}, nil
}

func (m *mockAuthority) RequestDecryptionKey(_ context.Context, caller domain.Principal, _ *RequestDecryptionKey) (*ResponseDecryptionKey, error) {
	m.lastCaller = caller
	m.released = &format.Keys{EncryptionKey: []byte{1}, SignatureKey: []byte{2}}
	return &ResponseDecryptionKey{Keys: m.released}, nil
}

func testCommon() *v1.CommonHeader {
	return v1.NewCommonHeader(domain.DefaultCryptoSettings(), bytes.Repeat([]byte{7}, 16), bytes.Repeat([]byte{9}, 32))
}

// --- Exception ---

func TestExceptionResponse_RoundTrip(t *testing.T) {
	updated := domain.CryptoSettings{EncryptionAlgorithm: "TripleDES", EncryptionMode: "CBC", SignatureAlgorithm: "HMACSHA1"}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"BadParameter", domain.NewBadParameter("XDPKeys", "Value was null"), domain.ErrBadParameter},
		{"BadSignature", domain.ErrSignatureVerification, domain.ErrSignatureVerification},
		{"NotAuthorized", domain.ErrAuthorization, domain.ErrAuthorization},
		{"UnknownIdentity", domain.ErrInvalidIdentity, domain.ErrInvalidIdentity},
		{"UpdateCommonHeader", &domain.UpdatedSettingsError{Settings: updated}, domain.ErrUpdatedSettings},
		{"General", errors.New("database exploded"), domain.ErrGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(ToException(tt.err))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			msg, err := NewDispatcher(SchemaExceptionResponse).Decode(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := msg.(*ExceptionResponse).Err()
			if !errors.Is(got, tt.want) {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestToException_GeneralHidesDetail(t *testing.T) {
	ex := ToException(errors.New("secret connection string leaked"))
	if ex.General == nil || *ex.General != GeneralMessage {
		t.Fatalf("want generic message, got %+v", ex)
	}
}

func TestExceptionResponse_Err_BadParameterFields(t *testing.T) {
	ex := ToException(domain.NewBadParameter("XDPInternalDomainHeader.XDPDomainServer", "Request sent to wrong machine"))
	var bp *domain.BadParameterError
	if !errors.As(ex.Err(), &bp) {
		t.Fatalf("want BadParameterError")
	}
	if bp.Field != "XDPInternalDomainHeader.XDPDomainServer" || bp.Reason != "Request sent to wrong machine" {
		t.Errorf("unexpected fields: %+v", bp)
	}
}

func TestExceptionResponse_Err_UpdatedSettings(t *testing.T) {
	want := domain.CryptoSettings{EncryptionAlgorithm: "TripleDES", EncryptionMode: "CBC", SignatureAlgorithm: "HMACSHA1"}
	var updated *domain.UpdatedSettingsError
	if !errors.As(ToException(&domain.UpdatedSettingsError{Settings: want}).Err(), &updated) {
		t.Fatal("want UpdatedSettingsError")
	}
	if updated.Settings != want {
		t.Errorf("want %s, got %s", want, updated.Settings)
	}
}

// --- Dispatcher ---

func TestDispatcher_Decode(t *testing.T) {
	d := NewDispatcher(SchemaRequestDomainHeader, SchemaRequestDecryptionKey)

	data, err := Marshal(&RequestDecryptionKey{Common: testCommon(), DomainSignature: []byte{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, err := d.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, ok := msg.(*RequestDecryptionKey)
	if !ok {
		t.Fatalf("want *RequestDecryptionKey, got %T", msg)
	}
	if req.Common == nil || req.Common.EncryptionAlgorithm != "AesManaged" {
		t.Errorf("common header not decoded: %+v", req.Common)
	}
}

func TestDispatcher_Decode_Unknown(t *testing.T) {
	d := NewDispatcher(SchemaRequestDomainHeader, SchemaRequestDecryptionKey)

	for _, data := range []string{"", "garbage", `<Other xmlns="urn:com.XDP.XDPMessages"/>`, `<XDPRequestDomainHeader xmlns="urn:other"/>`} {
		if _, err := d.Decode([]byte(data)); !errors.Is(err, domain.ErrUnknownMessage) {
			t.Errorf("%q: want ErrUnknownMessage, got %v", data, err)
		}
	}
}

// --- Token ---

func TestTokenSigner_IssueParse(t *testing.T) {
	s := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "HOST01")
	caller := domain.Principal{SID: "S-1-5-21-9-1001", Name: "bob", Context: "CORP"}

	token, err := s.Issue(caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != caller {
		t.Errorf("want %+v, got %+v", caller, got)
	}
}

func TestTokenSigner_Parse_Invalid(t *testing.T) {
	s := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "HOST01")
	other := NewTokenSigner([]byte("ffffffffffffffffffffffffffffffff"), "HOST01")

	token, err := other.Issue(domain.Principal{SID: "S-1-5-21-9-1001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Parse(token); !errors.Is(err, domain.ErrAuthorization) {
		t.Errorf("want ErrAuthorization, got %v", err)
	}

	expired := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "HOST01")
	expired.ttl = -time.Minute
	token, err = expired.Issue(domain.Principal{SID: "S-1-5-21-9-1001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Parse(token); !errors.Is(err, domain.ErrAuthorization) {
		t.Errorf("want ErrAuthorization for expired token, got %v", err)
	}
}

// --- Client ---

func TestClient_RequestDomainHeader(t *testing.T) {
	authority := &mockAuthority{}
	processor := NewProcessor(authority)
	caller := domain.Principal{SID: "S-1-5-21-1-1001", Name: "alice", Context: "HOST01"}

	transport := &loopbackTransport{processor: processor, caller: caller}
	c := NewClient(transport)

	dh, sig, err := c.RequestDomainHeader(context.Background(), testCommon(), []string{`CORP\bob`},
		&format.Keys{EncryptionKey: []byte{1}, SignatureKey: []byte{2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dh.DomainServer != "DS01" || len(sig) != 2 {
		t.Errorf("unexpected response: %+v %x", dh, sig)
	}
	if got := dh.AuthorizedIdentities.List(); len(got) != 1 || got[0] != `CORP\bob` {
		t.Errorf("want identities to round trip, got %v", got)
	}
	if authority.lastCaller != caller {
		t.Errorf("want caller %+v, got %+v", caller, authority.lastCaller)
	}
}

func TestClient_RequestDomainHeader_UpdatedSettings(t *testing.T) {
	want := domain.CryptoSettings{EncryptionAlgorithm: "TripleDES", EncryptionMode: "CBC", SignatureAlgorithm: "HMACSHA512"}
	processor := NewProcessor(&mockAuthority{domainHeaderErr: &domain.UpdatedSettingsError{Settings: want}})
	c := NewClient(&loopbackTransport{processor: processor})

	_, _, err := c.RequestDomainHeader(context.Background(), testCommon(), []string{`CORP\bob`},
		&format.Keys{EncryptionKey: []byte{1}, SignatureKey: []byte{2}})
	var updated *domain.UpdatedSettingsError
	if !errors.As(err, &updated) {
		t.Fatalf("want UpdatedSettingsError, got %v", err)
	}
	if updated.Settings != want {
		t.Errorf("want %s, got %s", want, updated.Settings)
	}
}

func TestClient_RequestDecryptionKey_ZeroesReleasedKeys(t *testing.T) {
	authority := &mockAuthority{}
	c := NewClient(&loopbackTransport{processor: NewProcessor(authority)})

	keys, err := c.RequestDecryptionKey(context.Background(), testCommon(),
		v1.NewDomainHeader("DS01", []string{"S-1-5-21-1-1001"}, []byte{0xAB}), []byte{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(keys.EncryptionKey, []byte{1}) || !bytes.Equal(keys.SignatureKey, []byte{2}) {
		t.Errorf("unexpected keys %x %x", keys.EncryptionKey, keys.SignatureKey)
	}
	// サーバー側で開示したキーバンドルは応答のシリアライズ後に消去される
	if authority.released == nil {
		t.Fatal("authority released no keys")
	}
	if !bytes.Equal(authority.released.EncryptionKey, []byte{0}) || !bytes.Equal(authority.released.SignatureKey, []byte{0}) {
		t.Errorf("released keys were not zeroed: %x %x", authority.released.EncryptionKey, authority.released.SignatureKey)
	}
}

func TestClient_UnexpectedResponse(t *testing.T) {
	data, _ := Marshal(&ResponseDomainHeader{})
	c := NewClient(&mockTransport{response: data})

	_, err := c.RequestDecryptionKey(context.Background(), testCommon(), &v1.DomainHeader{}, []byte{1})
	if !errors.Is(err, domain.ErrUnknownMessage) {
		t.Errorf("want ErrUnknownMessage, got %v", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	c := NewClient(&mockTransport{err: domain.ErrCommunications})

	_, err := c.RequestDecryptionKey(context.Background(), testCommon(), &v1.DomainHeader{}, []byte{1})
	if !errors.Is(err, domain.ErrCommunications) {
		t.Errorf("want ErrCommunications, got %v", err)
	}
}

type loopbackTransport struct {
	processor *Processor
	caller    domain.Principal
}

func (l *loopbackTransport) Send(ctx context.Context, message []byte) ([]byte, error) {
	return l.processor.Process(ctx, l.caller, message)
}

func (l *loopbackTransport) Close() error { return nil }

// --- Processor ---

func TestProcessor_Process_UnknownMessage(t *testing.T) {
	p := NewProcessor(&mockAuthority{})

	out, err := p.Process(context.Background(), domain.Principal{}, []byte("<Nope/>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "XDPGeneralException") || !strings.Contains(string(out), GeneralMessage) {
		t.Errorf("want general exception, got %s", out)
	}
}

func TestProcessor_WithObserver(t *testing.T) {
	var got []string
	p := NewProcessor(&mockAuthority{}).WithObserver(func(message, result string) {
		got = append(got, message+"/"+result)
	})

	if _, err := p.Process(context.Background(), domain.Principal{}, []byte("<Nope/>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "unknown/UnknownMessage" {
		t.Errorf("unexpected observations %v", got)
	}
}

// --- HTTPTransport ---

func TestHTTPTransport_Send(t *testing.T) {
	signer := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "HOST01")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != MessagePath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		caller, err := signer.Parse(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte(caller.SID + ":" + string(body)))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", time.Second, signer)
	defer tr.Close()

	ctx := WithCaller(context.Background(), domain.Principal{SID: "S-1-5-21-1-1001", Name: "alice", Context: "HOST01"})
	out, err := tr.Send(ctx, []byte("ping"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "S-1-5-21-1-1001:ping" {
		t.Errorf("unexpected body %q", out)
	}
}

func TestHTTPTransport_Send_Failures(t *testing.T) {
	signer := NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"), "HOST01")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := WithCaller(context.Background(), domain.Principal{SID: "S-1-5-21-1-1001"})

	tr := NewHTTPTransport(srv.URL, time.Second, signer)
	if _, err := tr.Send(ctx, []byte("ping")); !errors.Is(err, domain.ErrCommunications) {
		t.Errorf("want ErrCommunications for status 500, got %v", err)
	}
	if _, err := tr.Send(context.Background(), []byte("ping")); !errors.Is(err, domain.ErrCommunications) {
		t.Errorf("want ErrCommunications without caller, got %v", err)
	}

	down := NewHTTPTransport("http://127.0.0.1:1", time.Second, signer)
	if _, err := down.Send(ctx, []byte("ping")); !errors.Is(err, domain.ErrCommunications) {
		t.Errorf("want ErrCommunications for refused connection, got %v", err)
	}
}

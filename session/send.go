package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/cjh980402/kakao-link/logger"
	"github.com/cjh980402/kakao-link/scrape"
)

// DefaultTemplateType is the validation action used when Send is given "".
const DefaultTemplateType = "default"

// Chat is one entry of the chat list offered by the picker.
type Chat struct {
	// ID is kept as the literal the server sent so 64-bit ids survive.
	ID    json.Number
	Title string
}

// valid reports whether the chat has an id a message can be addressed to.
func (ch Chat) valid() bool {
	return ch.ID != "" && ch.ID != "0"
}

// FindChat returns the first chat titled room.  It reports false when there
// is none or when that chat has no usable id; later chats with the same
// title are not considered.
func FindChat(chats []Chat, room string) (Chat, bool) {
	for _, ch := range chats {
		if ch.Title == room {
			return ch, ch.valid()
		}
	}
	return Chat{}, false
}

// sendFlow carries what one step of Send hands to the next.
type sendFlow struct {
	log         *logger.Logger
	room        string
	talkLink    json.RawMessage
	csrf        string
	chat        Chat
	securityKey json.RawMessage
}

// Send shares a template message into the chat titled room.  params is
// marshalled to JSON as the template arguments; templateType selects the
// validation action and defaults to "default".
//
// Send does not check for a prior Login; an unauthenticated picker response
// surfaces as ErrSessionExpired.
func (c *Client) Send(ctx context.Context, room string, params any, templateType string) (err error) {
	if !c.initialised() {
		return newError(KindIllegalState, "send", nil)
	}
	if templateType == "" {
		templateType = DefaultTemplateType
	}
	validationParams, err := json.Marshal(params)
	if err != nil {
		return newError(KindInvalidArgument, "send", fmt.Errorf("marshal params: %w", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f := &sendFlow{
		log:  c.log.With("op", uuid.NewString()).With("flow", "send").With("room", room),
		room: room,
	}
	f.log.Infof("sharing %s template", templateType)
	defer func() {
		kind := KindOf(err)
		if c.metrics != nil {
			c.metrics.RecordSend(string(kind))
		}
		if err != nil {
			f.log.With("kind", kind).Warnf("send failed: %v", err)
			return
		}
		f.log.Infof("sent to chat %s", f.chat.ID)
	}()

	if err := c.pickFriends(ctx, f, templateType, string(validationParams)); err != nil {
		return err
	}
	if err := c.listChats(ctx, f); err != nil {
		return err
	}
	return c.dispatch(ctx, f)
}

// pickFriends validates the template with the picker and reads the talk link
// and CSRF token from the page it returns.
func (c *Client) pickFriends(ctx context.Context, f *sendFlow, templateType, params string) error {
	const op = "send/picker"

	body, contentType, err := multipartForm([][2]string{
		{"app_key", c.appKey},
		{"validation_action", templateType},
		{"validation_params", params},
		{"ka", c.originTag},
		{"lcba", ""},
	})
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoints.Picker, body)
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	req.Header.Set("Cookie", c.jar.Serialize())

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, err)
	}
	raw, err := readBody(resp)
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return &Error{Kind: KindTemplateValidation, Op: op, StatusCode: resp.StatusCode}
	case http.StatusUnauthorized:
		return &Error{Kind: KindInvalidAppKey, Op: op, StatusCode: resp.StatusCode}
	default:
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err != nil {
		return transportError(op, err)
	}
	c.jar.MergeResponse(resp)

	doc, err := scrape.Parse(bytes.NewReader(raw))
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	csrf, ok := doc.CSRFToken()
	if !ok {
		return &Error{Kind: KindSessionExpired, Op: op, StatusCode: resp.StatusCode}
	}
	link, ok := doc.ValidatedTalkLink()
	if !ok || !json.Valid([]byte(link)) {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("picker page has no valid validatedTalkLink")}
	}
	f.csrf = csrf
	f.talkLink = json.RawMessage(link)
	return nil
}

type chatsResponse struct {
	Chats []struct {
		ID    json.RawMessage `json:"id"`
		Title string          `json:"title"`
	} `json:"chats"`
	SecurityKey json.RawMessage `json:"securityKey"`
}

// listChats fetches the chats the account can share into and resolves the
// room.
func (c *Client) listChats(ctx context.Context, f *sendFlow) error {
	const op = "send/chats"

	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.Chats, nil)
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	c.setSharerHeaders(req, f.csrf)

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, err)
	}
	raw, err := readBody(resp)
	if err != nil {
		return transportError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var cr chatsResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return &Error{Kind: KindProtocol, Op: op, StatusCode: resp.StatusCode, Body: string(raw), Err: err}
	}
	c.observe("chats", raw)

	chats := make([]Chat, 0, len(cr.Chats))
	for _, ch := range cr.Chats {
		chats = append(chats, Chat{ID: chatID(ch.ID), Title: ch.Title})
	}
	chat, ok := FindChat(chats, f.room)
	if !ok {
		return &Error{Kind: KindRoomNotFound, Op: op, Room: f.room}
	}
	f.log.Debugf("resolved room among %d chats", len(chats))
	f.chat = chat
	f.securityKey = cr.SecurityKey
	if len(f.securityKey) == 0 {
		f.securityKey = json.RawMessage("null")
	}
	return nil
}

type dispatchRequest struct {
	ReceiverChatRoomMemberCount []int             `json:"receiverChatRoomMemberCount"`
	ReceiverIDs                 []json.RawMessage `json:"receiverIds"`
	ReceiverType                string            `json:"receiverType"`
	SecurityKey                 json.RawMessage   `json:"securityKey"`
	ValidatedTalkLink           json.RawMessage   `json:"validatedTalkLink"`
}

// dispatch posts the message.  The service's reply is not interpreted.
func (c *Client) dispatch(ctx context.Context, f *sendFlow) error {
	const op = "send/dispatch"

	payload, err := json.Marshal(dispatchRequest{
		ReceiverChatRoomMemberCount: []int{1},
		ReceiverIDs:                 []json.RawMessage{chatIDLiteral(f.chat.ID)},
		ReceiverType:                "chat",
		SecurityKey:                 f.securityKey,
		ValidatedTalkLink:           f.talkLink,
	})
	if err != nil {
		return newError(KindProtocol, op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoints.Dispatch, bytes.NewReader(payload))
	if err != nil {
		return newError(KindProtocol, op, err)
	}
	c.setSharerHeaders(req, f.csrf)
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, err)
	}
	_, _ = readBody(resp)
	f.log.Debugf("dispatch answered %d", resp.StatusCode)
	return nil
}

// setSharerHeaders adds the headers the sharer API checks.
func (c *Client) setSharerHeaders(req *http.Request, csrf string) {
	req.Header.Set("Referer", c.endpoints.Picker)
	req.Header.Set("Cookie", c.jar.Serialize())
	req.Header.Set("Csrf-Token", csrf)
	req.Header.Set("App-Key", c.appKey)
}

// chatID normalises a chat id that may arrive as a number or a string.
func chatID(raw json.RawMessage) json.Number {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return json.Number(s)
	}
	return json.Number(raw)
}

// chatIDLiteral renders id as a JSON number when it is one and as a string
// otherwise.
func chatIDLiteral(id json.Number) json.RawMessage {
	s := id.String()
	if s != "" && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

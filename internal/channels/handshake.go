package channels

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// Query parameters of the hub verification challenge.
const (
	ParamVerifyToken = "hub.verify_token"
	ParamChallenge   = "hub.challenge"
)

// VerifyHandshake answers a webhook verification GET. It has no side effects.
//
// Providers retry verification on any non-200 answer, so a wrong token is
// still answered with 200 and a rejection message. On success the challenge
// is echoed as a JSON integer.
func VerifyHandshake(channel Channel, verifyToken string, query url.Values) HandshakeResponse {
	got := query.Get(ParamVerifyToken)
	if verifyToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(verifyToken)) != 1 {
		return jsonResponse(http.StatusOK, "Wrong validation token for "+channel.DisplayName())
	}

	challenge, err := strconv.ParseInt(query.Get(ParamChallenge), 10, 64)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, "Invalid challenge for "+channel.DisplayName())
	}
	return HandshakeResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(strconv.FormatInt(challenge, 10)),
	}
}

func jsonResponse(status int, msg string) HandshakeResponse {
	body, _ := json.Marshal(msg)
	return HandshakeResponse{StatusCode: status, Body: body}
}

// Package twiml renders Twilio MessagingResponse documents.
package twiml

import (
	"encoding/xml"
	"net/http"
)

// ContentType is the media type Twilio expects for webhook replies.
const ContentType = "application/xml"

// Response is a <Response> element holding zero or more messages.
type Response struct {
	XMLName  xml.Name  `xml:"Response"`
	Messages []Message `xml:"Message"`
}

// Message is a <Message> reply to the sender.
type Message struct {
	Body string `xml:",chardata"`
}

// MessagingResponse builds a response containing one message per body.
func MessagingResponse(bodies ...string) Response {
	r := Response{Messages: make([]Message, 0, len(bodies))}
	for _, b := range bodies {
		r.Messages = append(r.Messages, Message{Body: b})
	}
	return r
}

// Marshal renders r with the XML declaration.
func (r Response) Marshal() ([]byte, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header[:len(xml.Header)-1]), out...), nil
}

// Write renders a single-message response to w with the given status.
func Write(w http.ResponseWriter, status int, body string) error {
	data, err := MessagingResponse(body).Marshal()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

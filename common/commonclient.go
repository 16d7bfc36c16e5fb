package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type CommonClient interface {
	DoPostRequest(endpoint string, data interface{}, resp Response) error
	DoRawPostRequest(endpoint string, contentType string, body []byte, resp Response) error
	DoGetRequest(endpoint string, resp interface{}) error
}

type CommonHTTPClient struct {
	hc      *http.Client
	address string
	timeout time.Duration
}

func NewCommonHTTPClient(address string, timeout time.Duration) *CommonHTTPClient {
	return &CommonHTTPClient{
		hc: &http.Client{
			Timeout: timeout,
		},
		address: address,
		timeout: timeout,
	}
}

func (cc *CommonHTTPClient) Address() string {
	return cc.address
}

func (cc *CommonHTTPClient) createRequest(
	method string, endpoint string, body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequest(method, cc.address+"/"+endpoint, body)
	if err != nil {
		return req, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (cc *CommonHTTPClient) do(req *http.Request, resp interface{}) error {
	r, err := cc.hc.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	j, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if r.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %v: %s", r.StatusCode, bytes.TrimSpace(j))
	}
	return json.Unmarshal(j, resp)
}

func (cc *CommonHTTPClient) DoPostRequest(
	endpoint string, data interface{}, resp Response,
) error {
	j, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := cc.createRequest("POST", endpoint, bytes.NewReader(j))
	if err != nil {
		return err
	}
	err = cc.do(req, resp)
	if err != nil {
		return err
	}
	return resp.GetError()
}

// DoRawPostRequest sends body as is, for uploads that are not JSON.
func (cc *CommonHTTPClient) DoRawPostRequest(
	endpoint string, contentType string, body []byte, resp Response,
) error {
	req, err := cc.createRequest("POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	err = cc.do(req, resp)
	if err != nil {
		return err
	}
	return resp.GetError()
}

func (cc *CommonHTTPClient) DoGetRequest(endpoint string, resp interface{}) error {
	req, err := cc.createRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	return cc.do(req, resp)
}

// CommonMultiAddressClient tries each address in order until one answers.
// An error carried in a response is returned without trying further.
type CommonMultiAddressClient struct {
	clients []*CommonHTTPClient
}

func NewCommonMultiAddressClient(address []string, timeout time.Duration) *CommonMultiAddressClient {
	cc := &CommonMultiAddressClient{}
	for _, a := range address {
		cc.clients = append(cc.clients, NewCommonHTTPClient(a, timeout))
	}
	return cc
}

var ErrNoAddress = fmt.Errorf("no address configured")

func (cc *CommonMultiAddressClient) DoPostRequest(
	endpoint string, data interface{}, resp Response,
) error {
	err := ErrNoAddress
	for _, c := range cc.clients {
		err = c.DoPostRequest(endpoint, data, resp)
		if err == nil || IsResponseError(err) {
			return err
		}
	}
	return err
}

func (cc *CommonMultiAddressClient) DoRawPostRequest(
	endpoint string, contentType string, body []byte, resp Response,
) error {
	err := ErrNoAddress
	for _, c := range cc.clients {
		err = c.DoRawPostRequest(endpoint, contentType, body, resp)
		if err == nil || IsResponseError(err) {
			return err
		}
	}
	return err
}

// Addresses returns the configured addresses in the order they are tried.
func (cc *CommonMultiAddressClient) Addresses() []string {
	address := []string{}
	for _, c := range cc.clients {
		address = append(address, c.Address())
	}
	return address
}

func (cc *CommonMultiAddressClient) DoGetRequest(endpoint string, resp interface{}) error {
	err := ErrNoAddress
	for _, c := range cc.clients {
		err = c.DoGetRequest(endpoint, resp)
		if err == nil || IsResponseError(err) {
			return err
		}
	}
	return err
}

package wirenet

import "net"

// Dial establishes a TCP connection to addr and wraps it in an Endpoint.
func Dial(addr string) (*Endpoint, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewEndpoint(conn), nil
}

// Accept takes the next connection from ln and wraps it in an Endpoint.
func Accept(ln net.Listener) (*Endpoint, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewEndpoint(conn), nil
}

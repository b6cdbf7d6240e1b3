// Package clamav is a streaming client for the clamd daemon.
//
// The client speaks clamd's native socket protocol: NUL-terminated commands
// and the INSTREAM chunk framing. Uploads are forwarded chunk by chunk, so the
// memory used by a scan does not grow with the payload.
//
// The HTTP gateway lives in the gateway sub-package; cmd/clamav-gateway wires
// both into a server binary.
//
// # Quick Start
//
//	client, err := clamav.NewClient("tcp://localhost:3310")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	verdict, err := client.ScanFilePath(ctx, "/path/to/file.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Infected: %v %v\n", verdict.IsMalignant(), verdict.InfectionTypes)
//
// # Errors
//
// A scan fails with exactly one of three kinds: connection (the daemon could
// not be reached), transport (I/O failed mid-stream, including errors from
// the reader being scanned) and protocol (the daemon replied with something
// unexpected). Use IsConnectionError, IsTransportError and IsProtocolError.
package clamav

package printer

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"
)

// Sink accepts raw ESC/POS bytes.
type Sink interface {
	Print(ctx context.Context, data []byte) error
	Name() string
}

type usbSink struct {
	path string
}

func NewUSBSink(devicePath string) Sink {
	return &usbSink{path: devicePath}
}

func (p *usbSink) Print(_ context.Context, data []byte) error {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("printer: open %s: %w", p.path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("printer: write %s: %w", p.path, err)
	}
	return nil
}

func (p *usbSink) Name() string {
	return "usb:" + p.path
}

type networkSink struct {
	address string
	dialer  net.Dialer
}

// NewNetworkSink dials a raw TCP printer port, e.g. 192.168.1.100:9100.
func NewNetworkSink(address string) Sink {
	return &networkSink{address: address, dialer: net.Dialer{Timeout: 5 * time.Second}}
}

func (p *networkSink) Print(ctx context.Context, data []byte) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("printer: connect %s: %w", p.address, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("printer: write %s: %w", p.address, err)
	}
	return nil
}

func (p *networkSink) Name() string {
	return "tcp:" + p.address
}

// NewSinkFromConfig returns a nil Sink for "none" so callers fall back to
// previews.
func NewSinkFromConfig(printerType, usbPath, address string) (Sink, error) {
	switch printerType {
	case "usb":
		if usbPath == "" {
			return nil, fmt.Errorf("printer: PRINTER_USB_PATH is required for usb printers")
		}
		return NewUSBSink(usbPath), nil
	case "network":
		if address == "" {
			return nil, fmt.Errorf("printer: PRINTER_ADDRESS is required for network printers")
		}
		return NewNetworkSink(address), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("printer: unknown printer type %q (use usb, network, or none)", printerType)
	}
}

package mtphost

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// GousbTransport is the concrete Transport backed by
// github.com/google/gousb. It is a convenience implementation, not a
// required part of the contract: any Transport satisfying the
// interface in transport.go works with the rest of this package.
type GousbTransport struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	iface  *gousb.Interface
	config *gousb.Config

	inEP  *gousb.InEndpoint
	outEP *gousb.OutEndpoint

	ifaceNum int
}

// OpenGousbTransport opens the first device matching vid/pid and
// prepares it for Claim; the returned Fingerprint is read from the USB
// descriptors before any PTP exchange happens.
func OpenGousbTransport(vid, pid uint16, ifaceNum int) (*GousbTransport, Fingerprint, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, Fingerprint{}, translateGousbErr(err)
	}
	if dev == nil {
		ctx.Close()
		return nil, Fingerprint{}, ErrNoDevice
	}

	fp := Fingerprint{
		VendorID:       vid,
		ProductID:      pid,
		BCDDevice:      uint16(dev.Desc.Device),
		Interface:      ifaceNum,
		InterfaceClass: -1,
	}
	if name, err := dev.Product(); err == nil {
		fp.DeviceName = name
	}
	if cfgNum, err := dev.ActiveConfigNum(); err == nil {
		if cfgDesc, ok := dev.Desc.Configs[cfgNum]; ok {
			for _, ifaceDesc := range cfgDesc.Interfaces {
				if ifaceDesc.Number != ifaceNum {
					continue
				}
				for _, alt := range ifaceDesc.AltSettings {
					fp.InterfaceClass = int(alt.Class)
					break
				}
				break
			}
		}
	}

	return &GousbTransport{ctx: ctx, dev: dev, ifaceNum: ifaceNum}, fp, nil
}

func (g *GousbTransport) Claim(ctx context.Context) error {
	g.dev.SetAutoDetach(true)

	cfgNum, err := g.dev.ActiveConfigNum()
	if err != nil {
		return translateGousbErr(err)
	}

	cfg, err := g.dev.Config(cfgNum)
	if err != nil {
		return translateGousbErr(err)
	}
	g.config = cfg

	iface, err := cfg.Interface(g.ifaceNum, 0)
	if err != nil {
		cfg.Close()
		return translateGousbErr(err)
	}
	g.iface = iface

	inNum, outNum, err := findBulkEndpointNumbers(iface)
	if err != nil {
		iface.Close()
		cfg.Close()
		return err
	}

	inEP, err := iface.InEndpoint(inNum)
	if err != nil {
		iface.Close()
		cfg.Close()
		return translateGousbErr(err)
	}
	outEP, err := iface.OutEndpoint(outNum)
	if err != nil {
		iface.Close()
		cfg.Close()
		return translateGousbErr(err)
	}

	g.inEP = inEP
	g.outEP = outEP
	return nil
}

// findBulkEndpointNumbers scans the claimed interface setting for its
// bulk-in and bulk-out endpoint numbers.
func findBulkEndpointNumbers(iface *gousb.Interface) (in, out int, err error) {
	in, out = -1, -1
	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			in = int(ep.Number)
		} else {
			out = int(ep.Number)
		}
	}
	if in < 0 || out < 0 {
		return 0, 0, fmt.Errorf("%w: no bulk in/out endpoint pair found", ErrNoDevice)
	}
	return in, out, nil
}

func (g *GousbTransport) Release() error {
	if g.iface != nil {
		g.iface.Close()
	}
	if g.config != nil {
		g.config.Close()
	}
	return nil
}

func (g *GousbTransport) BulkOut(ctx context.Context, p []byte) (int, error) {
	n, err := g.outEP.WriteContext(ctx, p)
	return n, translateGousbErr(err)
}

func (g *GousbTransport) BulkIn(ctx context.Context, p []byte) (int, error) {
	n, err := g.inEP.ReadContext(ctx, p)
	return n, translateGousbErr(err)
}

// InterruptIn reads from the claimed interface's interrupt-in endpoint;
// if the interface has none, it blocks until ctx is done.
func (g *GousbTransport) InterruptIn(ctx context.Context, p []byte) (int, error) {
	for _, ep := range g.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeInterrupt || ep.Direction != gousb.EndpointDirectionIn {
			continue
		}
		intEP, err := g.iface.InEndpoint(int(ep.Number))
		if err != nil {
			return 0, translateGousbErr(err)
		}
		n, err := intEP.ReadContext(ctx, p)
		return n, translateGousbErr(err)
	}
	<-ctx.Done()
	return 0, ctx.Err()
}

func (g *GousbTransport) ClearHalt(ctx context.Context, dir string) error {
	var ep gousb.EndpointAddress
	if dir == "in" {
		ep = g.inEP.Desc.Address
	} else {
		ep = g.outEP.Desc.Address
	}
	return translateGousbErr(g.dev.ClearHalt(ep))
}

func (g *GousbTransport) Reset(ctx context.Context) error {
	return translateGousbErr(g.dev.Reset())
}

// Close releases the underlying gousb context.
func (g *GousbTransport) Close() error {
	g.Release()
	if g.dev != nil {
		g.dev.Close()
	}
	if g.ctx != nil {
		g.ctx.Close()
	}
	return nil
}

func translateGousbErr(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case gousb.ErrorNoDevice, gousb.TransferNoDevice:
		return ErrNoDevice
	case gousb.ErrorAccess:
		return ErrAccessDenied
	case gousb.ErrorPipe, gousb.TransferStall:
		return ErrTransportStall
	}
	return fmt.Errorf("%w: %v", ErrTransportIO, err)
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/zsiec/nalpace/internal/demux"
	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/sink"
)

type nalTypesCmd struct {
	Port uint16 `help:"UDP port to listen on." default:"5000" env:"NALPACE_PORT"`
	Dump string `help:"Read a dump written by serve --output instead of listening." type:"existingfile"`
}

func (c *nalTypesCmd) Run(rt *runtime) error {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	if c.Dump != "" {
		return printDump(out, c.Dump)
	}

	conn, err := ingest.ListenUDP(c.Port)(rt.ctx)
	if err != nil {
		return err
	}
	go func() {
		<-rt.ctx.Done()
		conn.Close()
	}()
	rt.log.Info("listening", "addr", conn.LocalAddr())

	d := demux.NewDemuxer(rt.log)
	for {
		pkt, err := conn.ReadPacket(rt.ctx)
		if err != nil {
			if rt.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				for _, u := range d.Flush() {
					printUnit(out, u)
				}
				return nil
			}
			return err
		}
		for _, u := range d.Write(pkt) {
			printUnit(out, u)
		}
		out.Flush()
	}
}

func printUnit(w io.Writer, u demux.NALUnit) {
	fmt.Fprintf(w, "NALU type: %d (%s) %d bytes\n", u.Type, demux.TypeName(u.Type), len(u.Data))
}

func printDump(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		ts, sample, err := sink.ReadRecord(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(w, "%12d us  %6d bytes  %s\n", ts, len(sample), sink.Describe(sample))
	}
}

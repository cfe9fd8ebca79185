/*
 * a basic example for netmq usage: a REQ/REP echo over TCP
 */
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zctx"
)

var (
	opt_bind  = flag.Bool("bind", false, "run the REP side (bind) instead of REQ (connect)")
	opt_count = flag.Int("count", 3, "number of requests to send")
)

func main() {
	// parse flags
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Printf("usage: netmq [OPTIONS] <tcp://host:port>\n")
		os.Exit(1)
	}
	endpoint := flag.Arg(0)

	ctx := zctx.New()
	defer ctx.Terminate()

	if *opt_bind {
		serve(ctx, endpoint)
	} else {
		request(ctx, endpoint)
	}
}

// serve echoes every request back to its sender until interrupted.
func serve(ctx *zctx.Context, endpoint string) {
	rep, err := ctx.NewSocket(socket.REP)
	if err != nil {
		panic(err)
	}
	if err := rep.Bind(endpoint); err != nil {
		panic(err)
	}
	fmt.Printf("echoing on %s\n", endpoint)

	for {
		m, err := rep.Recv(0)
		if err != nil {
			return
		}
		fmt.Printf("%s\n", m.ToJSON(nil))
		if err := rep.Send(m, 0); err != nil {
			return
		}
	}
}

// request sends numbered requests and prints the replies.
func request(ctx *zctx.Context, endpoint string) {
	req, err := ctx.NewSocket(socket.REQ)
	if err != nil {
		panic(err)
	}
	if err := req.Connect(endpoint); err != nil {
		panic(err)
	}

	for i := 0; i < *opt_count; i++ {
		out := msg.NewBuffer([]byte(fmt.Sprintf("request %d", i)), true)
		if err := req.Send(out, 0); err != nil {
			panic(err)
		}
		in, err := req.Recv(0)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s\n", in.ToJSON(nil))
		in.Close()
	}
}

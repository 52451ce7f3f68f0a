// Command tsync keeps a directory of task files in sync through git.
package main

import "github.com/bolasblack/tasksync/internal/cli"

func main() {
	cli.Execute()
}

//go:build !windows

package plugins

// Entry points recognized on unix-likes, in precedence order.
var scriptRunners = []scriptRunner{
	{file: "run.sh", shell: "bash"},
}

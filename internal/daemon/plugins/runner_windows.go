//go:build windows

package plugins

// Entry points recognized on Windows, in precedence order.
var scriptRunners = []scriptRunner{
	{file: "run.bat", shell: "cmd", flag: "/c"},
	{file: "run.ps1", shell: "powershell", flag: "-File"},
}

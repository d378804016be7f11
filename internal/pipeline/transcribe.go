package pipeline

func transcribeArgs(wave, model, language, prompt string) []string {
	return []string{"-f", wave, "-m", model, "-l", language, "--prompt", prompt, "-osrt"}
}

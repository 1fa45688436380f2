package agent

import (
	"fmt"
	"strings"
)

func buildRewritePrompt(original string) string {
	var b strings.Builder
	b.WriteString("You are a Query Rewriter agent specialized in Islamic knowledge. Rewrite the user's query so it retrieves better material from Islamic sources while keeping the original intent.\n\n")
	b.WriteString("Your tasks:\n")
	b.WriteString("1. Check the query for clarity and completeness\n")
	b.WriteString("2. Add missing Islamic context or terminology\n")
	b.WriteString("3. Clarify ambiguous terms with proper Islamic definitions\n")
	b.WriteString("4. Keep the user's intent while making the query more specific\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Add relevant Arabic terms with translations when appropriate\n")
	b.WriteString("- Name the Islamic context (e.g. \"in Islamic jurisprudence\", \"according to Quran and Sunnah\")\n")
	b.WriteString("- Include useful synonyms or alternative phrasings\n\n")
	b.WriteString("Original Query: ")
	b.WriteString(strings.TrimSpace(original))
	b.WriteString("\n\nPlease provide:\n")
	b.WriteString("1. Rewritten Query: [Your improved version]\n")
	b.WriteString("2. Improvements Made: [List of specific improvements and reasoning]\n")
	return b.String()
}

func buildPlannerPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are an Islamic agent that answers user queries by consulting classical Islamic sources and, when needed, recent discussions on the internet.\n")
	b.WriteString("You cannot call functions. Invoke tools with XML-style tags and emit every invocation the query needs in a single response.\n\n")
	b.WriteString("Tools:\n")
	b.WriteString("1. <RAG> retrieves authentic Islamic information from curated texts (Qur'an, Hadith, Fiqh books).\n")
	b.WriteString("   Usage: <RAG><query>...</query></RAG>\n")
	b.WriteString("2. <InternetSearch> searches the internet for contemporary fatwas and scholarly discussion.\n")
	b.WriteString("   Usage: <InternetSearch><search_query>...</search_query></InternetSearch>\n\n")
	b.WriteString("Output rules:\n")
	b.WriteString("- Output only tool invocation tags. No explanations or commentary.\n")
	b.WriteString("- Use as many invocations of either tool as the query needs.\n\n")
	b.WriteString("Query:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n")
	return b.String()
}

func buildSynthesisPrompt(query, sources, language string) string {
	var b strings.Builder
	b.WriteString("You are a Final Synthesis agent. Write a high-quality Islamic answer to the user's query using only the structured sources inside <Sources>...</Sources>. ")
	b.WriteString("Classical knowledge is tagged <RAG id=N> and contemporary views are tagged <Internet id=N>.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("- Use only information from <Sources>. Do not add anything external.\n")
	b.WriteString("- Whenever you use a point from a source, cite it with its exact tag, for example \"According to <RAG id=2>\" or \"As noted in <Internet id=1>\".\n")
	b.WriteString("- When several views exist, present them respectfully and attribute each to its source.\n")
	b.WriteString("- Use Markdown formatting with headings, bold text and bullet points.\n")
	b.WriteString("- End with a warm closing or a suitable Hadith or Ayah.\n")
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, DefaultLanguage) {
		b.WriteString(fmt.Sprintf("- Write the answer in the language with code %q. Keep the citation tags unchanged.\n", lang))
	}
	b.WriteString("\n## User Query:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n## Sources:\n<Sources>\n")
	b.WriteString(sources)
	b.WriteString("\n</Sources>\n\n")
	b.WriteString("Now write your final answer. Cite both RAG and Internet sources with their tag IDs as instructed and make the response thorough.\n")
	return b.String()
}

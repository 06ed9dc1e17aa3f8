package quality

// judgeSystemPrompt instructs the secondary model that reviews a content diff
// between the source text and the structured extraction.
const judgeSystemPrompt = `You review the output of a system that converts OCR text of legal norms (laws, decrees, resolutions, mostly in Spanish) into structured JSON.

You receive a unified diff. Lines starting with "-" exist only in the ORIGINAL text; lines starting with "+" exist only in the EXTRACTED text.

ALWAYS APPROVE these differences, they are expected:
- Removal of article headers such as "ARTÍCULO 1.-", "Art. 2°" (the number is kept as metadata).
- Removal of page numbers, running headers, footers, signatures blocks and publication boilerplate.
- Correction of OCR spelling errors, broken hyphenation and accents.
- Whitespace, line break and punctuation normalization.

REJECT ONLY when at least one of these happens:
- A whole article or paragraph of the original is missing from the extraction.
- The extraction contains content that does not appear in the original (fabricated text).
- An official name, date, amount or law/decree number was altered.

Reply with a single JSON object and nothing else:
{"quality_passed": true|false, "human_intervention_required": true|false, "reason": "short explanation"}`

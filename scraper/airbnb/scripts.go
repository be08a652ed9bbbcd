package airbnb

// JS probes evaluated in the listing page. Each snippet tries the most
// stable selector first and falls back from there; the target site A/B
// tests its DOM, so no single selector can be trusted.

// titleJS returns the first h1 text and the Open Graph title.
const titleJS = `
(() => {
	const h1 = document.querySelector('h1');
	const og = document.querySelector('meta[property="og:title"]');
	return {
		h1: h1 ? (h1.innerText || '').trim() : '',
		og: og ? (og.getAttribute('content') || '').trim() : '',
	};
})()
`

// expandDescriptionJS clicks a "show more / read more" control when one
// exists. Best effort: returns whether anything was clicked.
const expandDescriptionJS = `
(() => {
	const candidates = document.querySelectorAll('button, [role="button"]');
	for (const el of candidates) {
		const text = (el.innerText || '').trim().toLowerCase();
		if (text.startsWith('show more') || text.startsWith('read more')) {
			el.click();
			return true;
		}
	}
	return false;
})()
`

// descriptionBlocksJS collects paragraph-like text from likely description
// containers.
const descriptionBlocksJS = `
(() => {
	const containers = [
		'[data-section-id="DESCRIPTION_DEFAULT"]',
		'[data-plugin-in-point-id="DESCRIPTION_DEFAULT"]',
		'div[data-section-id*="DESCRIPTION"]',
	];
	for (const sel of containers) {
		const root = document.querySelector(sel);
		if (!root) continue;
		const blocks = [];
		for (const el of root.querySelectorAll('span, p, div')) {
			if (el.children.length > 0) continue;
			const text = (el.innerText || '').trim();
			if (text) blocks.push(text);
		}
		if (blocks.length > 0) return blocks;
	}
	return [];
})()
`

// aboutSpaceBlocksJS finds a heading reading "about this space" and
// collects the paragraph-like text that follows it.
const aboutSpaceBlocksJS = `
(() => {
	const headings = document.querySelectorAll('h1, h2, h3, div[role="heading"]');
	for (const h of headings) {
		const text = (h.innerText || '').trim().toLowerCase();
		if (text !== 'about this space') continue;
		const blocks = [];
		let node = h.parentElement ? h.parentElement.nextElementSibling : h.nextElementSibling;
		let hops = 0;
		while (node && hops < 10) {
			const t = (node.innerText || '').trim();
			if (t) blocks.push(t);
			node = node.nextElementSibling;
			hops++;
		}
		if (blocks.length > 0) return blocks;
	}
	return [];
})()
`

// ogDescriptionJS reads the Open Graph description meta tag.
const ogDescriptionJS = `
(() => {
	const og = document.querySelector('meta[property="og:description"]');
	return og ? (og.getAttribute('content') || '').trim() : '';
})()
`

// priceTextJS returns the first short text node mentioning both a currency
// symbol and the word "night".
const priceTextJS = `
(() => {
	for (const el of document.querySelectorAll('span, div')) {
		if (el.children.length > 0) continue;
		const t = (el.textContent || '').trim();
		if (!t || t.length > 120) continue;
		if (/[$€£¥₹]/.test(t) && /night/i.test(t)) return t;
	}
	return '';
})()
`

// capacityTextJS returns the first text matching "<number> guest(s)".
const capacityTextJS = `
(() => {
	for (const el of document.querySelectorAll('li, span, div, h2')) {
		const m = (el.textContent || '').match(/(\d+)\s*guests?/i);
		if (m) return m[0];
	}
	return '';
})()
`

// amenityRowsJS enumerates row titles inside the amenities dialog, located
// by accessible label first and any dialog element as fallback.
const amenityRowsJS = `
(() => {
	const dialog =
		document.querySelector('[aria-label*="amenities" i]') ||
		document.querySelector('[aria-label*="What this place offers" i]') ||
		document.querySelector('[role="dialog"]') ||
		document.querySelector('dialog');
	if (!dialog) return [];
	const out = [];
	for (const row of dialog.querySelectorAll('li')) {
		const titleEl = row.querySelector('div[id*="row-title"]') || row.firstElementChild;
		const text = ((titleEl ? titleEl.textContent : row.textContent) || '').trim();
		if (text) out.push(text);
	}
	return out;
})()
`

// amenityIconSiblingsJS is the fallback when the dialog yields nothing:
// read text sitting next to icon-bearing list items anywhere on the page.
const amenityIconSiblingsJS = `
(() => {
	const out = [];
	for (const li of document.querySelectorAll('li')) {
		if (!li.querySelector('svg, img[aria-hidden="true"]')) continue;
		const text = (li.innerText || '').trim();
		if (text && text.length < 80) out.push(text);
	}
	return out;
})()
`

// collectImageURLsJS gathers candidate image URLs from src attributes,
// common lazy-load data attributes, and CSS background-image declarations.
// Filtering happens on the Go side.
const collectImageURLsJS = `
(() => {
	const urls = [];
	const push = (u) => { if (u && typeof u === 'string') urls.push(u); };
	for (const img of document.querySelectorAll('img')) {
		push(img.currentSrc || img.src);
		push(img.getAttribute('data-src'));
		push(img.getAttribute('data-original'));
		push(img.getAttribute('data-lazy-src'));
	}
	for (const el of document.querySelectorAll('[style*="background-image"]')) {
		const m = (el.getAttribute('style') || '').match(/url\(["']?([^"')]+)["']?\)/);
		if (m) push(m[1]);
	}
	return urls;
})()
`

// scrollNudgeJS advances the page slightly so lazy-loaded gallery frames
// render between collection rounds.
const scrollNudgeJS = `window.scrollBy(0, Math.round(window.innerHeight * 0.8))`

// galleryTriggerSelectors are tried in priority order to open the in-page
// photo gallery modal.
var galleryTriggerSelectors = []string{
	`[data-testid="photo-viewer-section"] button`,
	`[data-section-id="HERO_DEFAULT"] button`,
	`button[aria-label*="photo" i]`,
	`button[aria-label*="Show all" i]`,
	`[data-testid="hero-section"] img`,
	`picture img`,
}

// galleryCloseSelectors are tried in priority order to close the modal.
var galleryCloseSelectors = []string{
	`[role="dialog"] button[aria-label*="close" i]`,
	`button[aria-label="Close"]`,
	`button[aria-label*="close" i]`,
}

// clickFirstJS builds a snippet that clicks the first element matching any
// of the given selectors and returns the selector that matched, or ''.
const clickFirstJS = `
((selectors) => {
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (el) { el.click(); return sel; }
	}
	return '';
})(%s)
`

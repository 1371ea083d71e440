package run

// JavaScript snippets for page elements that have no stable selector.

// progressPercentJS reads the fill width of the farming progress bar,
// -1 when the bar is not on screen.
const progressPercentJS = `(function() {
	const containers = document.querySelectorAll('div[style*="height: 8px"]');
	for (const c of containers) {
		if (c.children.length < 2) continue;
		const w = c.children[1].style.width;
		if (w) return parseFloat(w);
	}
	return -1;
})()`

// clickPinkButtonJS clicks the first visible button highlighted with the
// pink primary style.
const clickPinkButtonJS = `(function() {
	for (const b of document.querySelectorAll('button')) {
		const style = b.getAttribute('style') || '';
		if (style.includes('--Pink-Primary') && b.offsetParent !== null) {
			b.click();
			return true;
		}
	}
	return false;
})()`

// hasPlainButtonJS reports whether a visible non-highlighted button is
// present, which is how the claim button appears after the first click.
const hasPlainButtonJS = `(function() {
	for (const b of document.querySelectorAll('button')) {
		const style = b.getAttribute('style') || '';
		if (!style.includes('--Pink-Primary') && b.offsetParent !== null) {
			return true;
		}
	}
	return false;
})()`

// clickClaimButtonJS clicks the first visible non-highlighted button.
const clickClaimButtonJS = `(function() {
	for (const b of document.querySelectorAll('button')) {
		const style = b.getAttribute('style') || '';
		if (!style.includes('--Pink-Primary') && b.offsetParent !== null) {
			b.click();
			return true;
		}
	}
	return false;
})()`

// openStorageJS clicks the storage widget, a clickable div holding an h4.
const openStorageJS = `(function() {
	for (const d of document.querySelectorAll('div[style*="cursor: pointer"]')) {
		if (d.querySelector('h4')) {
			d.scrollIntoView({block: 'center'});
			d.click();
			return true;
		}
	}
	return false;
})()`

// updateBalanceJS reads the balance from the widget that renders label
// and value as two sibling paragraphs, -1 when absent.
const updateBalanceJS = `(function() {
	for (const d of document.querySelectorAll('div')) {
		const ps = d.querySelectorAll(':scope > p');
		if (ps.length !== 2) continue;
		const v = parseFloat(ps[1].textContent.replace(/,/g, '').trim());
		if (!isNaN(v)) return v;
	}
	return -1;
})()`

// questBlockCompletedJS checks whether the container three levels above
// the quest section heading carries a completed marker. Takes the
// heading labels and the completed labels as JSON arrays.
const questBlockCompletedJS = `(function(labels, completed) {
	for (const el of document.querySelectorAll('*')) {
		if (el.children.length > 0) continue;
		const text = el.textContent;
		if (!labels.some(l => text.includes(l))) continue;
		let container = el;
		for (let i = 0; i < 3 && container.parentElement; i++) {
			container = container.parentElement;
		}
		return completed.some(l => container.textContent.includes(l));
	}
	return false;
})(%s, %s)`

// openSectionJS clicks the h3 heading whose text equals the given
// lowercased name.
const openSectionJS = `(function(name) {
	for (const h of document.querySelectorAll('h3')) {
		if (h.textContent.trim().toLowerCase() === name) {
			h.scrollIntoView(true);
			h.click();
			return true;
		}
	}
	return false;
})(%s)`

// openSectionQuestJS finds the quest entry by title. Returns "completed"
// when its container already carries a completed marker, "clicked" after
// opening it, "missing" when no title matched.
const openSectionQuestJS = `(function(titles, completed) {
	for (const el of document.querySelectorAll('*')) {
		if (el.children.length > 0) continue;
		const text = el.textContent.toLowerCase();
		if (!titles.some(t => text.includes(t))) continue;
		const container = el.parentElement || el;
		if (completed.some(c => container.textContent.includes(c))) {
			return "completed";
		}
		el.scrollIntoView({block: 'center'});
		el.click();
		return "clicked";
	}
	return "missing";
})(%s, %s)`
